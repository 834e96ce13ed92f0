package dkg

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
	"github.com/zmlAEQ/aequa-tdkg/internal/tss/poly"
	"github.com/zmlAEQ/aequa-tdkg/pkg/logger"
	"github.com/zmlAEQ/aequa-tdkg/pkg/metrics"
)

// PVSSTranscript is one dealer's publicly verifiable sharing:
//   - Commitment[j] = g^{a_j} in G1 (Feldman commitment, T+1 entries)
//   - Shares[i] = ek_i^{φ(x_i)} in G2, one per validator
//   - Sigma = h^{a_0}, checked against Commitment[0] by a pairing
type PVSSTranscript struct {
	Dealer     int
	Commitment []core.Point
	Shares     []core.Point
	Sigma      core.Point
}

// Deal samples a random degree-T polynomial and publishes its PVSS transcript.
// Parameters are validated before any randomness is consumed.
func Deal(ctx context.Context, params *Params, dealer int, rand io.Reader) (*PVSSTranscript, error) {
	return deal(ctx, params, dealer, "deal", func(f *core.Field, degree int) (*poly.Poly, error) {
		return poly.Random(f, degree, rand)
	})
}

// DealRefresh deals a polynomial with a_0 = 0. Adding such transcripts to an
// aggregate re-randomises every share without moving the group key.
func DealRefresh(ctx context.Context, params *Params, dealer int, rand io.Reader) (*PVSSTranscript, error) {
	return deal(ctx, params, dealer, "refresh", func(f *core.Field, degree int) (*poly.Poly, error) {
		return poly.RandomWithSecret(f, degree, f.Zero(), rand)
	})
}

// sampler draws the dealer polynomial once params and dealer are validated.
type sampler func(f *core.Field, degree int) (*poly.Poly, error)

func deal(ctx context.Context, params *Params, dealer int, kind string, sample sampler) (*PVSSTranscript, error) {
	begin := time.Now()
	t, err := dealTranscript(ctx, params, dealer, sample)
	ms := float64(time.Since(begin).Milliseconds())
	if err != nil {
		metrics.Inc("tdkg_deal_total", map[string]string{"result": "error"})
		logger.WarnJ("tdkg_deal", map[string]any{"kind": kind, "dealer": dealer, "result": "error", "err": err.Error()})
		return nil, err
	}
	metrics.Inc("tdkg_deal_total", map[string]string{"result": "ok"})
	metrics.ObserveSummary("tdkg_op_ms", map[string]string{"op": kind}, ms)
	logger.InfoJ("tdkg_deal", map[string]any{"kind": kind, "dealer": dealer, "n": params.N(), "t": params.Threshold, "result": "ok", "latency_ms": ms})
	return t, nil
}

func dealTranscript(ctx context.Context, params *Params, dealer int, sample sampler) (*PVSSTranscript, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !params.isMember(dealer) {
		return nil, core.ConfigError(core.ErrInvalidValidatorSet, fmt.Errorf("dealer %d is not a member", dealer))
	}
	s := params.Suite
	phi, err := sample(s.Field(), params.Threshold)
	if err != nil {
		return nil, err
	}
	defer phi.Zeroize()

	evals, err := poly.EvaluateMulti(ctx, phi, params.Points())
	if err != nil {
		return nil, err
	}
	defer core.WipeScalars(evals...)

	a0 := phi.Coeff(0)
	defer core.WipeScalars(a0)

	t := &PVSSTranscript{
		Dealer:     dealer,
		Commitment: phi.Commit(s.G1().Generator()),
		Shares:     make([]core.Point, params.N()),
		Sigma:      s.G2().Generator().Mul(a0),
	}
	for i, v := range params.Validators {
		t.Shares[i] = v.EncryptionKey.Mul(evals[i])
	}
	return t, nil
}

// Clone copies the point slices; points themselves are immutable.
func (t *PVSSTranscript) Clone() *PVSSTranscript {
	c := &PVSSTranscript{Dealer: t.Dealer, Sigma: t.Sigma}
	c.Commitment = append([]core.Point(nil), t.Commitment...)
	c.Shares = append([]core.Point(nil), t.Shares...)
	return c
}
