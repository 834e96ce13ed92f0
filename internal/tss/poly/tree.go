package poly

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
)

const (
	// Below this many points evaluation is plain Horner per point.
	directCutoff = 16
	// Subtrees covering at least this many points are built on their own goroutine.
	parallelCutoff = 256
)

// node covers points[lo:hi] and stores M(x) = Π (x - points[i]).
type node struct {
	lo, hi      int
	m           *Poly
	left, right *node
}

func (n *node) leaf() bool { return n.left == nil }

// tree is the subproduct tree over a fixed point list.
type tree struct {
	f      *core.Field
	points []core.Scalar
	root   *node
}

func buildTree(ctx context.Context, f *core.Field, points []core.Scalar) (*tree, error) {
	t := &tree{f: f, points: points}
	if len(points) == 0 {
		return t, nil
	}
	root, err := t.build(ctx, 0, len(points))
	if err != nil {
		return nil, err
	}
	t.root = root
	return t, nil
}

func (t *tree) build(ctx context.Context, lo, hi int) (*node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := &node{lo: lo, hi: hi}
	if hi-lo == 1 {
		n.m = New(t.f, t.f.Zero().Neg(t.points[lo]), t.f.One())
		return n, nil
	}
	mid := lo + (hi-lo)/2
	if hi-lo >= parallelCutoff {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			l, err := t.build(gctx, lo, mid)
			n.left = l
			return err
		})
		r, err := t.build(gctx, mid, hi)
		n.right = r
		if werr := g.Wait(); werr != nil {
			return nil, werr
		}
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		if n.left, err = t.build(ctx, lo, mid); err != nil {
			return nil, err
		}
		if n.right, err = t.build(ctx, mid, hi); err != nil {
			return nil, err
		}
	}
	n.m = n.left.m.Mul(n.right.m)
	return n, nil
}

// M returns the subproduct polynomial of all points.
func (t *tree) M() *Poly {
	if t.root == nil {
		return Constant(t.f, t.f.One())
	}
	return t.root.m
}

// evaluate computes p at every tree point with a remainder tree.
func (t *tree) evaluate(ctx context.Context, p *Poly) ([]core.Scalar, error) {
	out := make([]core.Scalar, len(t.points))
	if t.root == nil {
		return out, nil
	}
	r, err := p.Mod(t.root.m)
	if err != nil {
		return nil, err
	}
	defer r.Zeroize()
	if err := t.descend(ctx, t.root, r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *tree) descend(ctx context.Context, n *node, r *Poly, out []core.Scalar) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.leaf() || n.hi-n.lo <= directCutoff {
		for i := n.lo; i < n.hi; i++ {
			out[i] = r.Eval(t.points[i])
		}
		return nil
	}
	// remainders of a secret polynomial are secret too
	rl, err := r.Mod(n.left.m)
	if err != nil {
		return err
	}
	defer rl.Zeroize()
	rr, err := r.Mod(n.right.m)
	if err != nil {
		return err
	}
	defer rr.Zeroize()
	if n.hi-n.lo < parallelCutoff {
		if err := t.descend(ctx, n.left, rl, out); err != nil {
			return err
		}
		return t.descend(ctx, n.right, rr, out)
	}
	// the two halves write disjoint ranges of out
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.descend(gctx, n.left, rl, out) })
	g.Go(func() error { return t.descend(gctx, n.right, rr, out) })
	return g.Wait()
}

// combine returns Σ w_i * M(x)/(x - x_i) bottom-up: at an inner node the
// result is L*M_right + R*M_left.
func (t *tree) combine(ctx context.Context, n *node, w []core.Scalar) (*Poly, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n.leaf() {
		return Constant(t.f, w[n.lo]), nil
	}
	var l, r *Poly
	if n.hi-n.lo >= parallelCutoff {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			l, err = t.combine(gctx, n.left, w)
			return err
		})
		g.Go(func() (err error) {
			r, err = t.combine(gctx, n.right, w)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		var err error
		if l, err = t.combine(ctx, n.left, w); err != nil {
			return nil, err
		}
		if r, err = t.combine(ctx, n.right, w); err != nil {
			return nil, err
		}
	}
	return l.Mul(n.right.m).Add(r.Mul(n.left.m)), nil
}

// EvaluateMulti evaluates p at every point. Large point sets go through the
// subproduct tree; small ones fall back to Horner.
func EvaluateMulti(ctx context.Context, p *Poly, points []core.Scalar) ([]core.Scalar, error) {
	if len(points) < directCutoff || p.Degree() < directCutoff {
		out := make([]core.Scalar, len(points))
		for i, x := range points {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out[i] = p.Eval(x)
		}
		return out, nil
	}
	t, err := buildTree(ctx, p.f, points)
	if err != nil {
		return nil, err
	}
	return t.evaluate(ctx, p)
}

// Interpolate returns the unique polynomial of degree < n through the
// distinct (points[i], values[i]). Repeated pairs are merged; a repeated
// point with a different value is a *DegenerateInputError.
func Interpolate(ctx context.Context, f *core.Field, points, values []core.Scalar) (*Poly, error) {
	if len(points) != len(values) {
		return nil, ErrLengthMismatch
	}
	xs, ys, err := dedupe(f, points, values)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return Zero(f), nil
	}
	t, err := buildTree(ctx, f, xs)
	if err != nil {
		return nil, err
	}
	d, err := t.evaluate(ctx, t.M().Derivative())
	if err != nil {
		return nil, err
	}
	dInv, err := batchInvert(f, d)
	if err != nil {
		return nil, err
	}
	w := make([]core.Scalar, len(xs))
	for i := range w {
		w[i] = f.Zero().Mul(ys[i], dInv[i])
	}
	defer core.WipeScalars(w...)
	return t.combine(ctx, t.root, w)
}

func dedupe(f *core.Field, points, values []core.Scalar) ([]core.Scalar, []core.Scalar, error) {
	seen := make(map[string]int, len(points))
	xs := make([]core.Scalar, 0, len(points))
	ys := make([]core.Scalar, 0, len(points))
	for i, x := range points {
		k := string(f.Bytes(x))
		if j, ok := seen[k]; ok {
			if !f.Equal(values[j], values[i]) {
				return nil, nil, &DegenerateInputError{First: j, Second: i}
			}
			continue
		}
		seen[k] = i
		xs = append(xs, x)
		ys = append(ys, values[i])
	}
	return xs, ys, nil
}

// batchInvert inverts every element with a single field inversion.
func batchInvert(f *core.Field, vals []core.Scalar) ([]core.Scalar, error) {
	n := len(vals)
	out := make([]core.Scalar, n)
	if n == 0 {
		return out, nil
	}
	prefix := make([]core.Scalar, n)
	acc := f.One()
	for i, v := range vals {
		if core.IsZero(v) {
			return nil, core.ErrInvalidScalar
		}
		prefix[i] = acc.Clone()
		acc.Mul(acc, v)
	}
	inv, err := f.Inv(acc)
	if err != nil {
		return nil, err
	}
	for i := n - 1; i >= 0; i-- {
		out[i] = f.Zero().Mul(inv, prefix[i])
		inv.Mul(inv, vals[i])
	}
	return out, nil
}
