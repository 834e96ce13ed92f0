//go:build blst

package bls381

import (
	blst "github.com/supranational/blst/bindings/go"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
)

type suite struct {
	gt gtGroup
}

// New returns the blst-backed BLS12-381 suite.
func New() (core.Suite, error) {
	s := &suite{}
	s.gt = gtGroup{s: s}
	return s, nil
}

func (s *suite) Name() string       { return Name }
func (s *suite) Field() *core.Field { return scalarField }
func (s *suite) G1() core.Group     { return g1Group{} }
func (s *suite) G2() core.Group     { return g2Group{} }
func (s *suite) GT() core.Group     { return s.gt }

// Pair computes e(p, q) for p in G1 and q in G2.
func (s *suite) Pair(p, q core.Point) (core.Point, error) {
	return s.PairingProduct([]core.Point{p}, []core.Point{q})
}

// PairingProduct runs one multi Miller loop and a single final exponentiation.
// Pairs with an identity operand contribute the GT identity and are skipped.
func (s *suite) PairingProduct(ps, qs []core.Point) (core.Point, error) {
	if len(ps) != len(qs) {
		return nil, core.ErrGroupMismatch
	}
	p1 := make([]blst.P1Affine, 0, len(ps))
	q2 := make([]blst.P2Affine, 0, len(qs))
	for i := range ps {
		a, ok := ps[i].(*g1Point)
		if !ok {
			return nil, core.ErrGroupMismatch
		}
		b, ok := qs[i].(*g2Point)
		if !ok {
			return nil, core.ErrGroupMismatch
		}
		if a.IsIdentity() || b.IsIdentity() {
			continue
		}
		p1 = append(p1, *a.p.ToAffine())
		q2 = append(q2, *b.p.ToAffine())
	}
	if len(p1) == 0 {
		return gtOne(), nil
	}
	var gt *blst.Fp12
	if len(p1) == 1 {
		gt = blst.Fp12MillerLoop(&q2[0], &p1[0])
	} else {
		gt = blst.Fp12MillerLoopN(q2, p1)
	}
	gt.FinalExp()
	return &gtPoint{v: *gt}, nil
}
