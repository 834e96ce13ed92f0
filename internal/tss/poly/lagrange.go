package poly

import (
	"context"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
)

// From this many points on, the denominators Π_{j≠i}(x_i - x_j) come from the
// subproduct tree as M'(x_i) instead of the quadratic direct product.
const lagrangeTreeCutoff = 32

// LagrangeCoefficientsAtZero returns λ_i with p(0) = Σ λ_i p(points[i]) for
// every p of degree < len(points).
func LagrangeCoefficientsAtZero(ctx context.Context, f *core.Field, points []core.Scalar) ([]core.Scalar, error) {
	return LagrangeCoefficientsAt(ctx, f, points, f.Zero())
}

// LagrangeCoefficientsAt returns λ_i(x) = M(x) / ((x - x_i) M'(x_i)). Points
// must be distinct. If x is one of the points the result is the unit vector.
func LagrangeCoefficientsAt(ctx context.Context, f *core.Field, points []core.Scalar, x core.Scalar) ([]core.Scalar, error) {
	n := len(points)
	out := make([]core.Scalar, n)
	if n == 0 {
		return out, nil
	}
	seen := make(map[string]int, n)
	hit := -1
	for i, p := range points {
		k := string(f.Bytes(p))
		if j, ok := seen[k]; ok {
			return nil, &DegenerateInputError{First: j, Second: i}
		}
		seen[k] = i
		if f.Equal(p, x) {
			hit = i
		}
	}
	if hit >= 0 {
		for i := range out {
			out[i] = f.Zero()
		}
		out[hit] = f.One()
		return out, nil
	}

	d, err := denominators(ctx, f, points, n >= lagrangeTreeCutoff)
	if err != nil {
		return nil, err
	}

	// M(x) and the denominators (x - x_i) * d_i
	mx := f.One()
	den := make([]core.Scalar, n)
	for i := range points {
		xi := f.Zero().Sub(x, points[i])
		mx.Mul(mx, xi)
		den[i] = xi.Mul(xi, d[i])
	}
	inv, err := batchInvert(f, den)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i] = f.Zero().Mul(mx, inv[i])
	}
	return out, nil
}

// denominators returns d_i = Π_{j≠i}(x_i - x_j), either as M'(x_i) through the
// subproduct tree or by direct product.
func denominators(ctx context.Context, f *core.Field, points []core.Scalar, viaTree bool) ([]core.Scalar, error) {
	if viaTree {
		t, err := buildTree(ctx, f, points)
		if err != nil {
			return nil, err
		}
		return t.evaluate(ctx, t.M().Derivative())
	}
	d := make([]core.Scalar, len(points))
	diff := f.Zero()
	for i := range points {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		acc := f.One()
		for j := range points {
			if i == j {
				continue
			}
			diff.Sub(points[i], points[j])
			acc.Mul(acc, diff)
		}
		d[i] = acc
	}
	return d, nil
}
