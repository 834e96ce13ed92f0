package dkg

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
	"github.com/zmlAEQ/aequa-tdkg/pkg/logger"
	"github.com/zmlAEQ/aequa-tdkg/pkg/metrics"
)

type verifyOptions struct {
	zeroSecret bool
	optimistic bool
	root       *int
}

// VerifyOption tunes Verify.
type VerifyOption func(*verifyOptions)

// RequireZeroSecret additionally demands F_0 = identity (refresh transcripts).
func RequireZeroSecret() VerifyOption { return func(o *verifyOptions) { o.zeroSecret = true } }

// RequireRootAt additionally demands φ(x_target) = 0 (recovery transcripts).
func RequireRootAt(target int) VerifyOption { return func(o *verifyOptions) { o.root = &target } }

// OptimisticOnly skips the per-validator share checks and only checks Sigma.
func OptimisticOnly() VerifyOption { return func(o *verifyOptions) { o.optimistic = true } }

// Verify checks a transcript against params. A nil return means accepted.
// Per-validator share failures are all reported, combined with multierr.
func Verify(ctx context.Context, params *Params, t *PVSSTranscript, opts ...VerifyOption) error {
	var o verifyOptions
	for _, fn := range opts {
		fn(&o)
	}
	begin := time.Now()
	err := verify(ctx, params, t, o)
	ms := float64(time.Since(begin).Milliseconds())
	metrics.ObserveSummary("tdkg_op_ms", map[string]string{"op": "verify"}, ms)
	if err != nil {
		metrics.Inc("tdkg_verify_total", map[string]string{"result": "reject"})
		fields := map[string]any{"result": "reject", "err": err.Error(), "latency_ms": ms}
		if t != nil {
			fields["dealer"] = t.Dealer
		}
		if bad := FailedValidators(err); len(bad) > 0 {
			fields["validators"] = bad
		}
		logger.WarnJ("tdkg_verify", fields)
		return err
	}
	metrics.Inc("tdkg_verify_total", map[string]string{"result": "ok"})
	logger.InfoJ("tdkg_verify", map[string]any{"dealer": t.Dealer, "result": "ok", "latency_ms": ms})
	return nil
}

// VerifyBool reports whether Verify accepts t.
func VerifyBool(ctx context.Context, params *Params, t *PVSSTranscript) bool {
	return Verify(ctx, params, t) == nil
}

// FailedValidators lists the validator indices named by a Verify error.
func FailedValidators(err error) []int {
	var out []int
	for _, e := range multierr.Errors(err) {
		var ce *core.Error
		if errors.As(e, &ce) && ce.Validator >= 0 {
			out = append(out, ce.Validator)
		}
	}
	return out
}

func verify(ctx context.Context, params *Params, t *PVSSTranscript, o verifyOptions) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if err := checkShape(params, t); err != nil {
		return err
	}
	s := params.Suite
	g, h := s.G1().Generator(), s.G2().Generator()
	if o.zeroSecret && !(t.Commitment[0].IsIdentity() && t.Sigma.IsIdentity()) {
		return core.VerifyError(core.ErrInvalidTranscript, t.Dealer, core.NoIndex, fmt.Errorf("refresh transcript with nonzero secret"))
	}
	if o.root != nil {
		if !params.isMember(*o.root) {
			return core.ConfigError(core.ErrInvalidValidatorSet, fmt.Errorf("recovery target %d is not a member", *o.root))
		}
		if !commitmentAt(t.Commitment, params.Point(*o.root)).IsIdentity() {
			return core.VerifyError(core.ErrInvalidTranscript, t.Dealer, *o.root, fmt.Errorf("recovery transcript does not vanish at target"))
		}
	}

	// e(F_0, h) == e(g, Sigma)
	ok, err := core.PairingCheck(s, []core.Point{t.Commitment[0], g.Neg()}, []core.Point{h, t.Sigma})
	if err != nil {
		return core.VerifyError(core.ErrInvalidTranscript, t.Dealer, core.NoIndex, err)
	}
	if !ok {
		return core.VerifyError(core.ErrInvalidTranscript, t.Dealer, core.NoIndex, fmt.Errorf("sigma does not match commitment"))
	}
	if o.optimistic {
		return nil
	}
	return verifyShares(ctx, params, t)
}

// verifyShares checks e(g, Y_i) == e(A_i, ek_i) for every validator in parallel.
func verifyShares(ctx context.Context, params *Params, t *PVSSTranscript) error {
	s := params.Suite
	negG := s.G1().Generator().Neg()
	var (
		mu     sync.Mutex
		failed = make([]error, params.N())
	)
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, v := range params.Validators {
		i, v := i, v
		eg.Go(func() error {
			if err := ectx.Err(); err != nil {
				return err
			}
			ai := commitmentAt(t.Commitment, params.Point(i))
			ok, err := core.PairingCheck(s, []core.Point{negG, ai}, []core.Point{t.Shares[i], v.EncryptionKey})
			if err != nil || !ok {
				if err == nil {
					err = fmt.Errorf("share does not match commitment")
				}
				mu.Lock()
				failed[i] = core.VerifyError(core.ErrInvalidTranscript, t.Dealer, i, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return multierr.Combine(failed...)
}

func checkShape(params *Params, t *PVSSTranscript) error {
	if t == nil {
		return core.VerifyError(core.ErrInvalidTranscript, core.NoIndex, core.NoIndex, fmt.Errorf("nil transcript"))
	}
	bad := func(format string, args ...any) error {
		return core.VerifyError(core.ErrInvalidTranscript, t.Dealer, core.NoIndex, fmt.Errorf(format, args...))
	}
	if !params.isMember(t.Dealer) {
		return bad("dealer is not a member")
	}
	if len(t.Commitment) != params.Threshold+1 {
		return bad("commitment has %d entries, want %d", len(t.Commitment), params.Threshold+1)
	}
	if len(t.Shares) != params.N() {
		return bad("%d shares for %d validators", len(t.Shares), params.N())
	}
	s := params.Suite
	for j, c := range t.Commitment {
		if !core.InGroup(s.G1(), c) {
			return bad("commitment[%d] not in G1", j)
		}
	}
	for i, y := range t.Shares {
		if !core.InGroup(s.G2(), y) {
			return bad("share[%d] not in G2", i)
		}
	}
	if !core.InGroup(s.G2(), t.Sigma) {
		return bad("sigma not in G2")
	}
	return nil
}
