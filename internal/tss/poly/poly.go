// Package poly implements dense univariate polynomials over a prime field and
// the subproduct-tree algorithms built on them: multipoint evaluation,
// interpolation and Lagrange coefficients.
package poly

import (
	"io"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
)

// Poly is c[0] + c[1]x + ... + c[n-1]x^(n-1). Trailing zero coefficients are
// kept so that a dealt polynomial of degree T always has T+1 slots.
type Poly struct {
	f *core.Field
	c []core.Scalar
}

// New copies coeffs (lowest degree first) into a polynomial over f.
func New(f *core.Field, coeffs ...core.Scalar) *Poly {
	c := make([]core.Scalar, len(coeffs))
	for i, s := range coeffs {
		c[i] = s.Clone()
	}
	return &Poly{f: f, c: c}
}

// Zero returns the zero polynomial.
func Zero(f *core.Field) *Poly { return &Poly{f: f} }

// Constant returns the degree-0 polynomial s.
func Constant(f *core.Field, s core.Scalar) *Poly { return New(f, s) }

// Random samples degree+1 uniform coefficients from r.
func Random(f *core.Field, degree int, r io.Reader) (*Poly, error) {
	return RandomWithSecret(f, degree, nil, r)
}

// RandomWithSecret samples a degree-bounded polynomial with c[0] = secret.
// A nil secret is sampled as well. On error nothing sampled so far survives.
func RandomWithSecret(f *core.Field, degree int, secret core.Scalar, r io.Reader) (*Poly, error) {
	if degree < 0 {
		return Zero(f), nil
	}
	p := &Poly{f: f, c: make([]core.Scalar, degree+1)}
	start := 0
	if secret != nil {
		p.c[0] = secret.Clone()
		start = 1
	}
	for i := start; i <= degree; i++ {
		s, err := f.Random(r)
		if err != nil {
			p.Zeroize()
			return nil, err
		}
		p.c[i] = s
	}
	return p, nil
}

// Field returns the coefficient field.
func (p *Poly) Field() *core.Field { return p.f }

// Len is the number of stored coefficients.
func (p *Poly) Len() int { return len(p.c) }

// Degree returns the index of the highest nonzero coefficient, or -1 for zero.
func (p *Poly) Degree() int {
	for i := len(p.c) - 1; i >= 0; i-- {
		if !core.IsZero(p.c[i]) {
			return i
		}
	}
	return -1
}

// Coeff returns a copy of c[i]; out-of-range indices read as zero.
func (p *Poly) Coeff(i int) core.Scalar {
	if i < 0 || i >= len(p.c) {
		return p.f.Zero()
	}
	return p.c[i].Clone()
}

// Coeffs returns copies of all stored coefficients.
func (p *Poly) Coeffs() []core.Scalar {
	out := make([]core.Scalar, len(p.c))
	for i := range p.c {
		out[i] = p.c[i].Clone()
	}
	return out
}

// Eval evaluates p at x with Horner's rule.
func (p *Poly) Eval(x core.Scalar) core.Scalar {
	acc := p.f.Zero()
	for i := len(p.c) - 1; i >= 0; i-- {
		acc.Mul(acc, x)
		acc.Add(acc, p.c[i])
	}
	return acc
}

// Evaluate is Eval as a function.
func Evaluate(p *Poly, x core.Scalar) core.Scalar { return p.Eval(x) }

func (p *Poly) Add(q *Poly) *Poly {
	n := max(len(p.c), len(q.c))
	out := make([]core.Scalar, n)
	for i := range out {
		out[i] = p.f.Zero().Add(p.Coeff(i), q.Coeff(i))
	}
	return (&Poly{f: p.f, c: out}).trim()
}

func (p *Poly) Sub(q *Poly) *Poly {
	n := max(len(p.c), len(q.c))
	out := make([]core.Scalar, n)
	for i := range out {
		out[i] = p.f.Zero().Sub(p.Coeff(i), q.Coeff(i))
	}
	return (&Poly{f: p.f, c: out}).trim()
}

// Scale returns s*p.
func (p *Poly) Scale(s core.Scalar) *Poly {
	out := make([]core.Scalar, len(p.c))
	for i := range p.c {
		out[i] = p.f.Zero().Mul(p.c[i], s)
	}
	return &Poly{f: p.f, c: out}
}

// Mul returns p*q, switching to an NTT product for large operands.
func (p *Poly) Mul(q *Poly) *Poly {
	a, b := p.trim().c, q.trim().c
	if len(a) == 0 || len(b) == 0 {
		return Zero(p.f)
	}
	if min(len(a), len(b)) >= mulCutoff {
		if out, ok := mulNTT(p.f, a, b); ok {
			return (&Poly{f: p.f, c: out}).trim()
		}
	}
	return (&Poly{f: p.f, c: mulSchool(p.f, a, b)}).trim()
}

// Derivative returns the formal derivative.
func (p *Poly) Derivative() *Poly {
	if len(p.c) <= 1 {
		return Zero(p.f)
	}
	out := make([]core.Scalar, len(p.c)-1)
	for i := 1; i < len(p.c); i++ {
		out[i-1] = p.f.Zero().Mul(p.c[i], p.f.FromUint64(uint64(i)))
	}
	return (&Poly{f: p.f, c: out}).trim()
}

// Equal compares coefficient values, ignoring trailing zeros.
func (p *Poly) Equal(q *Poly) bool {
	if p.Degree() != q.Degree() {
		return false
	}
	for i := 0; i <= p.Degree(); i++ {
		if !p.f.Equal(p.c[i], q.c[i]) {
			return false
		}
	}
	return true
}

// Commit returns base*c[j] for every stored coefficient.
func (p *Poly) Commit(base core.Point) []core.Point {
	out := make([]core.Point, len(p.c))
	for j := range p.c {
		out[j] = base.Mul(p.c[j])
	}
	return out
}

// Zeroize wipes every coefficient; p reads as the zero polynomial afterwards.
func (p *Poly) Zeroize() {
	if p == nil {
		return
	}
	core.WipeScalars(p.c...)
	p.c = nil
}

// trim returns p with trailing zero coefficients dropped (shares storage).
func (p *Poly) trim() *Poly {
	return &Poly{f: p.f, c: p.c[:p.Degree()+1]}
}

// truncate returns p mod x^n, i.e. coefficients [0, n) padded with zeros.
func (p *Poly) truncate(n int) *Poly {
	out := make([]core.Scalar, n)
	for i := range out {
		out[i] = p.Coeff(i)
	}
	return (&Poly{f: p.f, c: out}).trim()
}

// reverse returns x^n * p(1/x) for n >= deg p.
func (p *Poly) reverse(n int) *Poly {
	out := make([]core.Scalar, n+1)
	for i := 0; i <= n; i++ {
		out[i] = p.Coeff(n - i)
	}
	return (&Poly{f: p.f, c: out}).trim()
}

func mulSchool(f *core.Field, a, b []core.Scalar) []core.Scalar {
	out := make([]core.Scalar, len(a)+len(b)-1)
	for i := range out {
		out[i] = f.Zero()
	}
	t := f.Zero()
	for i := range a {
		if core.IsZero(a[i]) {
			continue
		}
		for j := range b {
			t.Mul(a[i], b[j])
			out[i+j].Add(out[i+j], t)
		}
	}
	return out
}
