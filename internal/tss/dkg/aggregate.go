package dkg

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
	"github.com/zmlAEQ/aequa-tdkg/pkg/logger"
	"github.com/zmlAEQ/aequa-tdkg/pkg/metrics"
)

// AggregatedTranscript is the sum of the accepted dealers' transcripts. The
// group public key is Commitment[0]; Shares[i] stays encrypted to validator i.
type AggregatedTranscript struct {
	Dealers    []int
	Commitment []core.Point
	Shares     []core.Point
	Sigma      core.Point
	SessionTag []byte
}

// PrivateShare is validator i's unblinded aggregate share Z_i = h^{Σ φ_d(x_i)}.
type PrivateShare struct {
	Validator  int
	Value      core.Point
	SessionTag []byte
}

// Wipe clears the share value.
func (p *PrivateShare) Wipe() {
	if p.Value != nil {
		p.Value.Wipe()
	}
	p.Value = nil
}

type aggregateOptions struct {
	skipVerify bool
}

// AggregateOption tunes Aggregate.
type AggregateOption func(*aggregateOptions)

// SkipVerify trusts that every transcript already passed Verify.
func SkipVerify() AggregateOption { return func(o *aggregateOptions) { o.skipVerify = true } }

// Aggregate verifies and sums at least T+1 transcripts from distinct dealers.
// The result does not depend on the input order.
func Aggregate(ctx context.Context, params *Params, transcripts []*PVSSTranscript, opts ...AggregateOption) (*AggregatedTranscript, error) {
	var o aggregateOptions
	for _, fn := range opts {
		fn(&o)
	}
	begin := time.Now()
	agg, err := aggregate(ctx, params, transcripts, o)
	ms := float64(time.Since(begin).Milliseconds())
	metrics.ObserveSummary("tdkg_op_ms", map[string]string{"op": "aggregate"}, ms)
	if err != nil {
		metrics.Inc("tdkg_aggregate_total", map[string]string{"result": "error"})
		logger.WarnJ("tdkg_aggregate", map[string]any{"result": "error", "transcripts": len(transcripts), "err": err.Error()})
		return nil, err
	}
	metrics.Inc("tdkg_aggregate_total", map[string]string{"result": "ok"})
	logger.InfoJ("tdkg_aggregate", map[string]any{"result": "ok", "dealers": len(agg.Dealers), "latency_ms": ms})
	return agg, nil
}

func aggregate(ctx context.Context, params *Params, transcripts []*PVSSTranscript, o aggregateOptions) (*AggregatedTranscript, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	sorted, err := distinctDealers(transcripts, nil)
	if err != nil {
		return nil, err
	}
	if len(sorted) < params.Threshold+1 {
		return nil, core.VerifyError(core.ErrInsufficientDealers, core.NoIndex, core.NoIndex,
			fmt.Errorf("have %d dealers, need %d", len(sorted), params.Threshold+1))
	}
	if !o.skipVerify {
		for _, t := range sorted {
			if err := Verify(ctx, params, t); err != nil {
				return nil, err
			}
		}
	}
	agg := emptyAggregate(params)
	agg.sum(sorted)
	return agg, nil
}

// distinctDealers sorts transcripts by dealer and rejects repeats, including
// dealers already present in have.
func distinctDealers(transcripts []*PVSSTranscript, have []int) ([]*PVSSTranscript, error) {
	seen := make(map[int]struct{}, len(transcripts)+len(have))
	for _, d := range have {
		seen[d] = struct{}{}
	}
	out := make([]*PVSSTranscript, 0, len(transcripts))
	for _, t := range transcripts {
		if t == nil {
			return nil, core.VerifyError(core.ErrInvalidTranscript, core.NoIndex, core.NoIndex, fmt.Errorf("nil transcript"))
		}
		if _, dup := seen[t.Dealer]; dup {
			return nil, core.VerifyError(core.ErrDuplicateDealer, t.Dealer, core.NoIndex, nil)
		}
		seen[t.Dealer] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dealer < out[j].Dealer })
	return out, nil
}

func emptyAggregate(params *Params) *AggregatedTranscript {
	s := params.Suite
	agg := &AggregatedTranscript{
		Commitment: make([]core.Point, params.Threshold+1),
		Shares:     make([]core.Point, params.N()),
		Sigma:      s.G2().Identity(),
	}
	for j := range agg.Commitment {
		agg.Commitment[j] = s.G1().Identity()
	}
	for i := range agg.Shares {
		agg.Shares[i] = s.G2().Identity()
	}
	return agg
}

// sum adds the transcripts into a and records their dealers.
func (a *AggregatedTranscript) sum(ts []*PVSSTranscript) {
	for _, t := range ts {
		for j := range a.Commitment {
			a.Commitment[j] = a.Commitment[j].Add(t.Commitment[j])
		}
		for i := range a.Shares {
			a.Shares[i] = a.Shares[i].Add(t.Shares[i])
		}
		a.Sigma = a.Sigma.Add(t.Sigma)
		a.Dealers = append(a.Dealers, t.Dealer)
	}
	sort.Ints(a.Dealers)
}

func (a *AggregatedTranscript) clone() *AggregatedTranscript {
	return &AggregatedTranscript{
		Dealers:    append([]int(nil), a.Dealers...),
		Commitment: append([]core.Point(nil), a.Commitment...),
		Shares:     append([]core.Point(nil), a.Shares...),
		Sigma:      a.Sigma,
		SessionTag: bytes.Clone(a.SessionTag),
	}
}

// PublicKey is the group encryption key Σ_d F_{d,0} in G1.
func (a *AggregatedTranscript) PublicKey() core.Point { return a.Commitment[0] }

// Add returns a new aggregate that also includes more. Dealers already
// aggregated are rejected with ErrDuplicateDealer.
func (a *AggregatedTranscript) Add(ctx context.Context, params *Params, more ...*PVSSTranscript) (*AggregatedTranscript, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	sorted, err := distinctDealers(more, a.Dealers)
	if err != nil {
		return nil, err
	}
	for _, t := range sorted {
		if err := Verify(ctx, params, t); err != nil {
			return nil, err
		}
	}
	out := a.clone()
	out.sum(sorted)
	return out, nil
}

// Refresh adds at least T+1 zero-secret transcripts. The group key and Sigma
// stay the same while every encrypted share is re-randomised.
func (a *AggregatedTranscript) Refresh(ctx context.Context, params *Params, updates []*PVSSTranscript) (*AggregatedTranscript, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	sorted, err := distinctDealers(updates, nil)
	if err != nil {
		return nil, err
	}
	if len(sorted) < params.Threshold+1 {
		return nil, core.VerifyError(core.ErrInsufficientDealers, core.NoIndex, core.NoIndex,
			fmt.Errorf("have %d refresh dealers, need %d", len(sorted), params.Threshold+1))
	}
	for _, t := range sorted {
		if err := Verify(ctx, params, t, RequireZeroSecret()); err != nil {
			return nil, err
		}
	}
	out := a.clone()
	dealers := append([]int(nil), out.Dealers...)
	out.sum(sorted)
	out.Dealers = dealers
	logger.InfoJ("tdkg_refresh", map[string]any{"result": "ok", "updates": len(sorted)})
	return out, nil
}

// Equal compares the public content of two aggregates (not the session tag).
func (a *AggregatedTranscript) Equal(b *AggregatedTranscript) bool {
	if len(a.Dealers) != len(b.Dealers) || len(a.Commitment) != len(b.Commitment) || len(a.Shares) != len(b.Shares) {
		return false
	}
	for i := range a.Dealers {
		if a.Dealers[i] != b.Dealers[i] {
			return false
		}
	}
	for j := range a.Commitment {
		if !a.Commitment[j].Equal(b.Commitment[j]) {
			return false
		}
	}
	for i := range a.Shares {
		if !a.Shares[i].Equal(b.Shares[i]) {
			return false
		}
	}
	return a.Sigma.Equal(b.Sigma)
}

// VerifyAggregation recomputes the sum of transcripts and checks that agg
// matches it and that e(pk, h) == e(g, Sigma).
func VerifyAggregation(ctx context.Context, params *Params, agg *AggregatedTranscript, transcripts []*PVSSTranscript) error {
	if err := checkAggregateShape(params, agg); err != nil {
		return err
	}
	want, err := Aggregate(ctx, params, transcripts)
	if err != nil {
		return err
	}
	if !want.Equal(agg) {
		return core.VerifyError(core.ErrInvalidAggregate, core.NoIndex, core.NoIndex, fmt.Errorf("aggregate does not match transcripts"))
	}
	return verifyAggregateSigma(params, agg)
}

func verifyAggregateSigma(params *Params, agg *AggregatedTranscript) error {
	s := params.Suite
	ok, err := core.PairingCheck(s,
		[]core.Point{agg.PublicKey(), s.G1().Generator().Neg()},
		[]core.Point{s.G2().Generator(), agg.Sigma})
	if err != nil || !ok {
		return core.VerifyError(core.ErrInvalidAggregate, core.NoIndex, core.NoIndex, fmt.Errorf("sigma does not match public key"))
	}
	return nil
}

func checkAggregateShape(params *Params, agg *AggregatedTranscript) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if agg == nil || len(agg.Commitment) != params.Threshold+1 || len(agg.Shares) != params.N() || agg.Sigma == nil {
		return core.VerifyError(core.ErrInvalidAggregate, core.NoIndex, core.NoIndex, fmt.Errorf("malformed aggregate"))
	}
	return nil
}

// PublicKeyShare returns A_i = g^{Σ φ_d(x_i)}, validator i's public share in G1.
func (a *AggregatedTranscript) PublicKeyShare(params *Params, i int) (core.Point, error) {
	if !params.isMember(i) || len(a.Commitment) == 0 {
		return nil, core.ConfigError(core.ErrInvalidValidatorSet, fmt.Errorf("validator %d is not a member", i))
	}
	return commitmentAt(a.Commitment, params.Point(i)), nil
}

// PrivateShare unblinds Shares[kp.Index] with dk^-1 and checks the result
// against the public key share: e(g, Z_i) == e(A_i, h).
func (a *AggregatedTranscript) PrivateShare(params *Params, kp *Keypair) (*PrivateShare, error) {
	if err := checkAggregateShape(params, a); err != nil {
		return nil, err
	}
	i := kp.Index
	if !params.isMember(i) || !params.Validators[i].EncryptionKey.Equal(kp.EncryptionKey) {
		return nil, core.ConfigError(core.ErrInvalidValidatorSet, fmt.Errorf("keypair %d does not belong to this session", i))
	}
	z, err := kp.Unblind(a.Shares[i])
	if err != nil {
		return nil, err
	}
	s := params.Suite
	ai := commitmentAt(a.Commitment, params.Point(i))
	ok, err := core.PairingCheck(s, []core.Point{s.G1().Generator(), ai.Neg()}, []core.Point{z, s.G2().Generator()})
	if err != nil || !ok {
		z.Wipe()
		return nil, core.VerifyError(core.ErrInvalidAggregate, core.NoIndex, i, fmt.Errorf("share does not match commitment"))
	}
	return &PrivateShare{Validator: i, Value: z, SessionTag: bytes.Clone(a.SessionTag)}, nil
}
