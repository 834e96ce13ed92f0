package poly

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core/bls381"
)

var fld = bls381.ScalarField()

func randPoly(t testing.TB, degree int) *Poly {
	t.Helper()
	p, err := Random(fld, degree, rand.Reader)
	require.NoError(t, err)
	return p
}

func indexPoints(n int) []core.Scalar {
	out := make([]core.Scalar, n)
	for i := range out {
		out[i] = fld.FromUint64(uint64(i + 1))
	}
	return out
}

func TestPoly_Basic(t *testing.T) {
	// 3 + 2x + x^2
	p := New(fld, fld.FromUint64(3), fld.FromUint64(2), fld.FromUint64(1))
	require.Equal(t, 2, p.Degree())
	require.True(t, fld.Equal(p.Eval(fld.FromUint64(2)), fld.FromUint64(11)))
	require.True(t, fld.Equal(Evaluate(p, fld.Zero()), fld.FromUint64(3)))

	d := p.Derivative()
	require.True(t, d.Equal(New(fld, fld.FromUint64(2), fld.FromUint64(2))))
	require.True(t, p.Sub(p).Equal(Zero(fld)))
	require.Equal(t, -1, Zero(fld).Degree())

	// trailing zeros keep their slot but do not count toward the degree
	q := New(fld, fld.One(), fld.Zero())
	require.Equal(t, 2, q.Len())
	require.Equal(t, 0, q.Degree())
	require.True(t, q.Equal(Constant(fld, fld.One())))
}

func TestPoly_MulMatchesSchoolbook(t *testing.T) {
	for _, n := range []int{1, 5, 63, 64, 130} {
		a, b := randPoly(t, n), randPoly(t, n+3)
		got := a.Mul(b)
		want := (&Poly{f: fld, c: mulSchool(fld, a.c, b.c)}).trim()
		require.True(t, got.Equal(want), "n=%d", n)
		x := fld.FromUint64(77)
		require.True(t, fld.Equal(got.Eval(x), fld.Zero().Mul(a.Eval(x), b.Eval(x))))
	}
}

func TestPoly_DivRem(t *testing.T) {
	cases := []struct{ pdeg, ddeg int }{{10, 3}, {3, 10}, {300, 20}, {200, 1}, {40, 40}}
	for _, tc := range cases {
		p, d := randPoly(t, tc.pdeg), randPoly(t, tc.ddeg)
		q, r, err := p.DivRem(d)
		require.NoError(t, err)
		require.Less(t, r.Degree(), d.Degree())
		require.True(t, q.Mul(d).Add(r).Equal(p), "p=%d d=%d", tc.pdeg, tc.ddeg)
	}
	_, _, err := randPoly(t, 3).DivRem(Zero(fld))
	require.ErrorIs(t, err, ErrZeroDivisor)
}

func TestPoly_DivRemNewtonMatchesLong(t *testing.T) {
	p, d := randPoly(t, 400), randPoly(t, 50)
	q1, r1, err := p.divLong(d, p.Degree(), d.Degree())
	require.NoError(t, err)
	q2, r2, err := p.divNewton(d, p.Degree(), d.Degree())
	require.NoError(t, err)
	require.True(t, q1.Equal(q2))
	require.True(t, r1.Equal(r2))
}

func TestEvaluateMulti(t *testing.T) {
	ctx := context.Background()
	for _, n := range []int{0, 1, 7, 16, 100, 300} {
		p := randPoly(t, n/2+1)
		pts := indexPoints(n)
		got, err := EvaluateMulti(ctx, p, pts)
		require.NoError(t, err)
		require.Len(t, got, n)
		for i := range pts {
			require.True(t, fld.Equal(got[i], p.Eval(pts[i])), "n=%d i=%d", n, i)
		}
	}
}

func TestEvaluateMulti_HighDegree(t *testing.T) {
	// degree above the point count exercises the initial reduction mod M
	p := randPoly(t, 90)
	pts := indexPoints(40)
	got, err := EvaluateMulti(context.Background(), p, pts)
	require.NoError(t, err)
	for i := range pts {
		require.True(t, fld.Equal(got[i], p.Eval(pts[i])))
	}
}

func TestEvaluateMulti_WipesOnlyRemainders(t *testing.T) {
	p := randPoly(t, 90)
	keep := New(fld, p.Coeffs()...)
	pts := indexPoints(64)
	first, err := EvaluateMulti(context.Background(), p, pts)
	require.NoError(t, err)
	require.True(t, p.Equal(keep))
	again, err := EvaluateMulti(context.Background(), p, pts)
	require.NoError(t, err)
	for i := range pts {
		require.True(t, fld.Equal(first[i], again[i]))
		require.True(t, fld.Equal(first[i], p.Eval(pts[i])))
	}
}

func TestEvaluateMulti_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := EvaluateMulti(ctx, randPoly(t, 40), indexPoints(64))
	require.ErrorIs(t, err, context.Canceled)
}

func TestInterpolate_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, n := range []int{1, 2, 9, 33, 280} {
		p := randPoly(t, n-1)
		pts := indexPoints(n)
		vals, err := EvaluateMulti(ctx, p, pts)
		require.NoError(t, err)
		got, err := Interpolate(ctx, fld, pts, vals)
		require.NoError(t, err)
		require.True(t, got.Equal(p), "n=%d", n)
	}
}

func TestInterpolate_Duplicates(t *testing.T) {
	ctx := context.Background()
	p := New(fld, fld.FromUint64(5), fld.FromUint64(1))
	pts := []core.Scalar{fld.FromUint64(1), fld.FromUint64(2), fld.FromUint64(1)}
	vals := []core.Scalar{p.Eval(pts[0]), p.Eval(pts[1]), p.Eval(pts[2])}

	got, err := Interpolate(ctx, fld, pts, vals)
	require.NoError(t, err)
	require.True(t, got.Equal(p))

	vals[2] = fld.FromUint64(999)
	_, err = Interpolate(ctx, fld, pts, vals)
	require.ErrorIs(t, err, ErrDegenerateInput)
	var de *DegenerateInputError
	require.True(t, errors.As(err, &de))
	require.Equal(t, 0, de.First)
	require.Equal(t, 2, de.Second)

	_, err = Interpolate(ctx, fld, pts, vals[:2])
	require.ErrorIs(t, err, ErrLengthMismatch)

	z, err := Interpolate(ctx, fld, nil, nil)
	require.NoError(t, err)
	require.Equal(t, -1, z.Degree())
}

func TestLagrangeAtZero_RecoversSecret(t *testing.T) {
	ctx := context.Background()
	for _, n := range []int{1, 4, 31, 32, 70} {
		p := randPoly(t, n-1)
		// non-contiguous index set
		pts := make([]core.Scalar, n)
		for i := range pts {
			pts[i] = fld.FromUint64(uint64(3*i + 2))
		}
		lambda, err := LagrangeCoefficientsAtZero(ctx, fld, pts)
		require.NoError(t, err)
		acc := fld.Zero()
		for i := range pts {
			acc.Add(acc, fld.Zero().Mul(lambda[i], p.Eval(pts[i])))
		}
		require.True(t, fld.Equal(acc, p.Coeff(0)), "n=%d", n)
	}
}

func TestLagrange_TreeMatchesDirect(t *testing.T) {
	ctx := context.Background()
	pts := make([]core.Scalar, 45)
	for i := range pts {
		pts[i] = fld.FromUint64(uint64(i*i + 7))
	}
	viaTree, err := denominators(ctx, fld, pts, true)
	require.NoError(t, err)
	direct, err := denominators(ctx, fld, pts, false)
	require.NoError(t, err)
	for i := range pts {
		require.True(t, fld.Equal(viaTree[i], direct[i]), "i=%d", i)
	}
}

func TestLagrange_EdgeCases(t *testing.T) {
	ctx := context.Background()
	pts := []core.Scalar{fld.FromUint64(4), fld.Zero(), fld.FromUint64(9)}
	l, err := LagrangeCoefficientsAtZero(ctx, fld, pts)
	require.NoError(t, err)
	require.True(t, core.IsZero(l[0]))
	require.True(t, fld.Equal(l[1], fld.One()))
	require.True(t, core.IsZero(l[2]))

	_, err = LagrangeCoefficientsAtZero(ctx, fld, []core.Scalar{fld.One(), fld.FromUint64(2), fld.One()})
	require.ErrorIs(t, err, ErrDegenerateInput)

	l, err = LagrangeCoefficientsAtZero(ctx, fld, nil)
	require.NoError(t, err)
	require.Empty(t, l)

	// arbitrary target: interpolating p at x = 10 through three points
	p := New(fld, fld.FromUint64(1), fld.FromUint64(2), fld.FromUint64(3))
	pts = indexPoints(3)
	x := fld.FromUint64(10)
	l, err = LagrangeCoefficientsAt(ctx, fld, pts, x)
	require.NoError(t, err)
	acc := fld.Zero()
	for i := range pts {
		acc.Add(acc, fld.Zero().Mul(l[i], p.Eval(pts[i])))
	}
	require.True(t, fld.Equal(acc, p.Eval(x)))
}

func TestLagrangeCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewLagrangeCache(fld, 2)
	require.NoError(t, err)
	pts := indexPoints(3)
	a, err := c.AtZero(ctx, pts)
	require.NoError(t, err)
	// mutating a returned vector must not poison the cache
	a[0].Zero()
	b, err := c.AtZero(ctx, pts)
	require.NoError(t, err)
	want, err := LagrangeCoefficientsAtZero(ctx, fld, pts)
	require.NoError(t, err)
	for i := range want {
		require.True(t, fld.Equal(b[i], want[i]))
	}
	require.Equal(t, 1, c.Len())

	_, _ = c.AtZero(ctx, indexPoints(4))
	_, _ = c.AtZero(ctx, indexPoints(5))
	require.Equal(t, 2, c.Len())

	_, err = c.AtZero(ctx, []core.Scalar{fld.One(), fld.One()})
	require.ErrorIs(t, err, ErrDegenerateInput)
}

func TestRandom_ZeroizeAndShortRead(t *testing.T) {
	p, err := RandomWithSecret(fld, 3, fld.Zero(), rand.Reader)
	require.NoError(t, err)
	require.True(t, core.IsZero(p.Coeff(0)))
	require.Equal(t, 4, p.Len())

	cs := p.c
	p.Zeroize()
	for _, s := range cs {
		require.True(t, core.IsZero(s))
	}
	require.Equal(t, -1, p.Degree())

	_, err = Random(fld, 3, shortReader{})
	require.ErrorIs(t, err, core.ErrInsufficientRandomness)
}

type shortReader struct{}

func (shortReader) Read(b []byte) (int, error) { return 0, errors.New("exhausted") }
