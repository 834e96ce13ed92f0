package poly

import (
	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
)

// Quotients with at least this many coefficients use Newton inversion.
const divCutoff = 128

// DivRem returns q, r with p = q*d + r and deg r < deg d.
func (p *Poly) DivRem(d *Poly) (*Poly, *Poly, error) {
	dd := d.Degree()
	if dd < 0 {
		return nil, nil, ErrZeroDivisor
	}
	pd := p.Degree()
	if pd < dd {
		return Zero(p.f), p.truncate(pd + 1), nil
	}
	if pd-dd+1 >= divCutoff {
		return p.divNewton(d, pd, dd)
	}
	return p.divLong(d, pd, dd)
}

// Mod returns p mod d.
func (p *Poly) Mod(d *Poly) (*Poly, error) {
	_, r, err := p.DivRem(d)
	return r, err
}

func (p *Poly) divLong(d *Poly, pd, dd int) (*Poly, *Poly, error) {
	f := p.f
	lcInv, err := f.Inv(d.c[dd])
	if err != nil {
		return nil, nil, err
	}
	r := p.Coeffs()[:pd+1]
	q := make([]core.Scalar, pd-dd+1)
	t := f.Zero()
	for i := pd - dd; i >= 0; i-- {
		c := f.Zero().Mul(r[i+dd], lcInv)
		q[i] = c
		if core.IsZero(c) {
			continue
		}
		for j := 0; j <= dd; j++ {
			t.Mul(c, d.c[j])
			r[i+j].Sub(r[i+j], t)
		}
	}
	return (&Poly{f: f, c: q}).trim(), (&Poly{f: f, c: r[:dd]}).trim(), nil
}

// divNewton computes rev(q) = rev(p) * rev(d)^-1 mod x^k, k = deg p - deg d + 1.
func (p *Poly) divNewton(d *Poly, pd, dd int) (*Poly, *Poly, error) {
	k := pd - dd + 1
	inv, err := d.reverse(dd).invSeries(k)
	if err != nil {
		return nil, nil, err
	}
	qRev := p.reverse(pd).Mul(inv).truncate(k)
	q := qRev.reverse(k - 1)
	r := p.Sub(q.Mul(d))
	return q, r.truncate(dd), nil
}

// invSeries returns g with p*g = 1 mod x^k; p(0) must be nonzero.
func (p *Poly) invSeries(k int) (*Poly, error) {
	f := p.f
	g0, err := f.Inv(p.Coeff(0))
	if err != nil {
		return nil, err
	}
	g := Constant(f, g0)
	two := Constant(f, f.FromUint64(2))
	for n := 1; n < k; {
		n *= 2
		// g = g * (2 - p*g) mod x^n
		e := two.Sub(p.truncate(n).Mul(g).truncate(n))
		g = g.Mul(e).truncate(n)
	}
	return g.truncate(k), nil
}
