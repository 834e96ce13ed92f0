package tpke

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
	"github.com/zmlAEQ/aequa-tdkg/internal/tss/poly"
	"github.com/zmlAEQ/aequa-tdkg/pkg/logger"
	"github.com/zmlAEQ/aequa-tdkg/pkg/metrics"
)

// one LagrangeCache per scalar field
var lagrangeCaches sync.Map

func lagrangeCache(f *core.Field) (*poly.LagrangeCache, error) {
	if v, ok := lagrangeCaches.Load(f); ok {
		return v.(*poly.LagrangeCache), nil
	}
	lc, err := poly.NewLagrangeCache(f, poly.DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	v, _ := lagrangeCaches.LoadOrStore(f, lc)
	return v.(*poly.LagrangeCache), nil
}

// Combine recovers the plaintext from at least T+1 distinct decryption shares.
// Per validator the first share that verifies is used; every validator
// given takes part. When all shares carry proofs the shared secret is computed as
// one multi-pairing Π e(λ_i C_i, Y_i), otherwise as Σ λ_i D_i in GT.
func Combine(ctx context.Context, sess Session, ct *Ciphertext, aad []byte, shares []*DecryptionShare) ([]byte, error) {
	begin := time.Now()
	pt, n, err := combine(ctx, sess, ct, aad, shares)
	ms := float64(time.Since(begin).Milliseconds())
	if err != nil {
		metrics.Inc("tdkg_combine_total", map[string]string{"result": "error"})
		logger.WarnJ("tdkg_combine", map[string]any{"result": "error", "shares": n, "err": err.Error()})
		return nil, err
	}
	metrics.Inc("tdkg_combine_total", map[string]string{"result": "ok"})
	metrics.ObserveSummary("tdkg_op_ms", map[string]string{"op": "combine"}, ms)
	logger.InfoJ("tdkg_combine", map[string]any{"result": "ok", "shares": n, "latency_ms": ms})
	return pt, nil
}

func combine(ctx context.Context, sess Session, ct *Ciphertext, aad []byte, shares []*DecryptionShare) ([]byte, int, error) {
	params := sess.Params()
	need := params.Threshold + 1
	if n := len(dedupe(shares)); n < need {
		return nil, n, core.VerifyError(core.ErrInsufficientShares, core.NoIndex, core.NoIndex,
			fmt.Errorf("have %d distinct shares, need %d", n, need))
	}
	uniq, err := selectShares(ctx, sess, ct, shares)
	if err != nil {
		return nil, len(uniq), err
	}
	if err := CheckCiphertext(params.Suite, ct, aad); err != nil {
		return nil, len(uniq), err
	}

	s, err := sharedSecret(ctx, sess, uniq)
	if err != nil {
		return nil, len(uniq), err
	}
	defer s.Wipe()
	ub, err := ct.Commitment.MarshalBinary()
	if err != nil {
		return nil, len(uniq), err
	}
	pt, err := open(s, ub, ct.Payload, aad)
	if err != nil {
		return nil, len(uniq), core.VerifyError(core.ErrDecryptionFailed, core.NoIndex, core.NoIndex, err)
	}
	return pt, len(uniq), nil
}

// dedupe keeps the first share per validator and sorts by validator index.
func dedupe(shares []*DecryptionShare) []*DecryptionShare {
	seen := make(map[int]bool, len(shares))
	out := make([]*DecryptionShare, 0, len(shares))
	for _, ds := range shares {
		if ds == nil || seen[ds.Validator] {
			continue
		}
		seen[ds.Validator] = true
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Validator < out[j].Validator })
	return out
}

// selectShares keeps, per validator, the first share that verifies. A
// validator with no verifying share fails the whole set with the error of its
// first share.
func selectShares(ctx context.Context, sess Session, ct *Ciphertext, shares []*DecryptionShare) ([]*DecryptionShare, error) {
	// the common case: every first share carries a valid proof
	if first := dedupe(shares); len(first) > 1 {
		ok, err := batchVerify(sess, ct, first, rand.Reader)
		if err != nil {
			return nil, err
		}
		if ok {
			return first, nil
		}
	}
	accepted := make(map[int]*DecryptionShare, len(shares))
	rejected := make(map[int]error)
	for _, ds := range shares {
		if ds == nil || accepted[ds.Validator] != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := VerifyDecryptionShare(sess, ct, ds); err != nil {
			if rejected[ds.Validator] == nil {
				rejected[ds.Validator] = err
			}
			continue
		}
		accepted[ds.Validator] = ds
		delete(rejected, ds.Validator)
	}
	out := make([]*DecryptionShare, 0, len(accepted))
	for _, ds := range accepted {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Validator < out[j].Validator })
	if len(rejected) == 0 {
		return out, nil
	}
	bad := make([]int, 0, len(rejected))
	for v := range rejected {
		bad = append(bad, v)
	}
	sort.Ints(bad)
	var errs error
	for _, v := range bad {
		errs = multierr.Append(errs, rejected[v])
	}
	return out, errs
}

func sharedSecret(ctx context.Context, sess Session, shares []*DecryptionShare) (core.Point, error) {
	params := sess.Params()
	s := params.Suite
	points := make([]core.Scalar, len(shares))
	proofs := true
	for i, ds := range shares {
		points[i] = params.Point(ds.Validator)
		proofs = proofs && ds.Proof != nil
	}
	lc, err := lagrangeCache(s.Field())
	if err != nil {
		return nil, err
	}
	lambda, err := lc.AtZero(ctx, points)
	if err != nil {
		return nil, err
	}
	defer core.WipeScalars(lambda...)

	if proofs {
		agg, err := sess.Aggregated()
		if err != nil {
			return nil, err
		}
		ps := make([]core.Point, len(shares))
		qs := make([]core.Point, len(shares))
		for i, ds := range shares {
			ps[i] = ds.Proof.Checksum.Mul(lambda[i])
			qs[i] = agg.Shares[ds.Validator]
		}
		return s.PairingProduct(ps, qs)
	}
	acc := s.GT().Identity()
	for i, ds := range shares {
		acc = acc.Add(ds.PartialValue.Mul(lambda[i]))
	}
	return acc, nil
}
