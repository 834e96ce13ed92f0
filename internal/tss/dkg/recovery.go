package dkg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
	"github.com/zmlAEQ/aequa-tdkg/internal/tss/poly"
	"github.com/zmlAEQ/aequa-tdkg/pkg/logger"
	"github.com/zmlAEQ/aequa-tdkg/pkg/metrics"
)

// DealRecovery deals a polynomial with φ(x_target) = 0. Every remaining
// validator that applies the same updates moves its share onto a blinded
// polynomial that still passes through validator target's share, so T+1 of
// the blinded shares interpolate it without exposing anything else.
func DealRecovery(ctx context.Context, params *Params, dealer, target int, rand io.Reader) (*PVSSTranscript, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !params.isMember(target) {
		return nil, core.ConfigError(core.ErrInvalidValidatorSet, fmt.Errorf("recovery target %d is not a member", target))
	}
	if dealer == target {
		return nil, core.ConfigError(core.ErrInvalidValidatorSet, fmt.Errorf("validator %d cannot deal its own recovery", target))
	}
	x := params.Point(target)
	return deal(ctx, params, dealer, "recovery", func(f *core.Field, degree int) (*poly.Poly, error) {
		p, err := poly.Random(f, degree, rand)
		if err != nil {
			return nil, err
		}
		defer p.Zeroize()
		v := p.Eval(x)
		defer core.WipeScalars(v)
		return p.Sub(poly.Constant(f, v)), nil
	})
}

// ApplyRecoveryUpdates adds validator kp.Index's slice of every update to
// share. The result is a recovery fragment for target: it only serves
// RecoverPrivateShare and does not decrypt. All helpers must apply the same
// update set.
func ApplyRecoveryUpdates(ctx context.Context, params *Params, share *PrivateShare, kp *Keypair, target int, updates []*PVSSTranscript) (*PrivateShare, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if share == nil || share.Value == nil || kp == nil || share.Validator != kp.Index {
		return nil, core.ConfigError(core.ErrInvalidValidatorSet, fmt.Errorf("share and keypair do not match"))
	}
	if kp.Index == target || !params.isMember(target) {
		return nil, core.ConfigError(core.ErrInvalidValidatorSet, fmt.Errorf("invalid recovery target %d", target))
	}
	sorted, err := distinctDealers(updates, nil)
	if err != nil {
		return nil, err
	}
	if len(sorted) < params.Threshold+1 {
		return nil, core.VerifyError(core.ErrInsufficientDealers, core.NoIndex, core.NoIndex,
			fmt.Errorf("have %d recovery updates, need %d", len(sorted), params.Threshold+1))
	}
	acc := share.Value
	for _, u := range sorted {
		if err := Verify(ctx, params, u, RequireRootAt(target)); err != nil {
			return nil, err
		}
		delta, err := kp.Unblind(u.Shares[kp.Index])
		if err != nil {
			return nil, err
		}
		next := acc.Add(delta)
		delta.Wipe()
		if acc != share.Value {
			acc.Wipe()
		}
		acc = next
	}
	return &PrivateShare{Validator: kp.Index, Value: acc, SessionTag: bytes.Clone(share.SessionTag)}, nil
}

// RecoverPrivateShare interpolates recovery fragments at target's point and
// checks the result against the aggregate: e(g, Z_target) == e(A_target, h).
func RecoverPrivateShare(ctx context.Context, params *Params, agg *AggregatedTranscript, target int, fragments []*PrivateShare) (*PrivateShare, error) {
	begin := time.Now()
	ps, n, err := recoverShare(ctx, params, agg, target, fragments)
	ms := float64(time.Since(begin).Milliseconds())
	if err != nil {
		metrics.Inc("tdkg_share_recovery_total", map[string]string{"result": "error"})
		logger.WarnJ("tdkg_share_recovery", map[string]any{"target": target, "fragments": n, "result": "error", "err": err.Error()})
		return nil, err
	}
	metrics.Inc("tdkg_share_recovery_total", map[string]string{"result": "ok"})
	metrics.ObserveSummary("tdkg_op_ms", map[string]string{"op": "share_recovery"}, ms)
	logger.InfoJ("tdkg_share_recovery", map[string]any{"target": target, "fragments": n, "result": "ok", "latency_ms": ms})
	return ps, nil
}

func recoverShare(ctx context.Context, params *Params, agg *AggregatedTranscript, target int, fragments []*PrivateShare) (*PrivateShare, int, error) {
	if err := params.Validate(); err != nil {
		return nil, 0, err
	}
	if !params.isMember(target) {
		return nil, 0, core.ConfigError(core.ErrInvalidValidatorSet, fmt.Errorf("recovery target %d is not a member", target))
	}
	if err := checkAggregateShape(params, agg); err != nil {
		return nil, 0, err
	}
	seen := make(map[int]bool, len(fragments))
	use := make([]*PrivateShare, 0, len(fragments))
	for _, fr := range fragments {
		if fr == nil || fr.Value == nil || fr.Validator == target || !params.isMember(fr.Validator) || seen[fr.Validator] {
			continue
		}
		if !bytes.Equal(fr.SessionTag, agg.SessionTag) {
			return nil, 0, core.VerifyError(core.ErrStaleShare, core.NoIndex, fr.Validator, nil)
		}
		seen[fr.Validator] = true
		use = append(use, fr)
	}
	if len(use) < params.Threshold+1 {
		return nil, len(use), core.VerifyError(core.ErrRecoveryFailed, core.NoIndex, target,
			fmt.Errorf("have %d fragments, need %d", len(use), params.Threshold+1))
	}
	sort.Slice(use, func(i, j int) bool { return use[i].Validator < use[j].Validator })

	s := params.Suite
	points := make([]core.Scalar, len(use))
	values := make([]core.Point, len(use))
	for i, fr := range use {
		points[i] = params.Point(fr.Validator)
		values[i] = fr.Value
	}
	lambda, err := poly.LagrangeCoefficientsAt(ctx, s.Field(), points, params.Point(target))
	if err != nil {
		return nil, len(use), err
	}
	defer core.WipeScalars(lambda...)
	z, err := core.LinearCombination(s.G2(), lambda, values)
	if err != nil {
		return nil, len(use), err
	}
	a := commitmentAt(agg.Commitment, params.Point(target))
	ok, err := core.PairingCheck(s, []core.Point{s.G1().Generator(), a.Neg()}, []core.Point{z, s.G2().Generator()})
	if err != nil || !ok {
		z.Wipe()
		if err == nil {
			err = fmt.Errorf("recovered share does not match commitment")
		}
		return nil, len(use), core.VerifyError(core.ErrRecoveryFailed, core.NoIndex, target, err)
	}
	return &PrivateShare{Validator: target, Value: z, SessionTag: bytes.Clone(agg.SessionTag)}, len(use), nil
}
