//go:build blst

package bls381

import (
	"bytes"
	"encoding/hex"

	blst "github.com/supranational/blst/bindings/go"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
)

// Compressed encodings of the point at infinity.
var (
	g1InfBytes = infEncoding(G1Len)
	g2InfBytes = infEncoding(G2Len)
)

func infEncoding(n int) []byte {
	b := make([]byte, n)
	b[0] = 0xc0
	return b
}

// toBlst converts a field element to a blst scalar; the caller wipes the result.
func toBlst(s core.Scalar) *blst.Scalar {
	buf := scalarField.Bytes(s)
	var out blst.Scalar
	out.FromBEndian(buf)
	core.WipeBytes(buf)
	return &out
}

func short(b []byte) string {
	if len(b) > 8 {
		b = b[:8]
	}
	return hex.EncodeToString(b) + "…"
}

// ---- G1 ----

type g1Point struct{ p blst.P1 }

func (a *g1Point) Group() core.GroupID { return core.G1 }

func (a *g1Point) Add(q core.Point) core.Point {
	r := a.p
	r.AddAssign(&q.(*g1Point).p)
	return &g1Point{p: r}
}

func (a *g1Point) Sub(q core.Point) core.Point {
	r := a.p
	r.SubAssign(&q.(*g1Point).p)
	return &g1Point{p: r}
}

func (a *g1Point) Neg() core.Point {
	var r blst.P1
	r.SubAssign(&a.p)
	return &g1Point{p: r}
}

func (a *g1Point) Mul(s core.Scalar) core.Point {
	k := toBlst(s)
	defer func() { *k = blst.Scalar{} }()
	return &g1Point{p: *a.p.Mult(k)}
}

func (a *g1Point) bytes() []byte { return a.p.ToAffine().Compress() }

func (a *g1Point) Equal(q core.Point) bool {
	b, ok := q.(*g1Point)
	return ok && bytes.Equal(a.bytes(), b.bytes())
}

func (a *g1Point) IsIdentity() bool { return bytes.Equal(a.bytes(), g1InfBytes) }

func (a *g1Point) MarshalBinary() ([]byte, error) { return a.bytes(), nil }

func (a *g1Point) Wipe() { a.p = blst.P1{} }

func (a *g1Point) String() string { return "G1(" + short(a.bytes()) + ")" }

type g1Group struct{}

func (g1Group) ID() core.GroupID       { return core.G1 }
func (g1Group) Identity() core.Point   { return &g1Point{} }
func (g1Group) Generator() core.Point  { return &g1Point{p: *blst.P1Generator()} }
func (g1Group) PointLen() int          { return G1Len }

func (g1Group) Unmarshal(b []byte) (core.Point, error) {
	if len(b) != G1Len {
		return nil, ErrInvalidInput
	}
	if bytes.Equal(b, g1InfBytes) {
		return &g1Point{}, nil
	}
	var aff blst.P1Affine
	if aff.Uncompress(b) == nil || !aff.InG1() {
		return nil, core.ErrInvalidPoint
	}
	var p blst.P1
	p.FromAffine(&aff)
	return &g1Point{p: p}, nil
}

func (g1Group) HashToPoint(msg, dst []byte) (core.Point, error) {
	return &g1Point{p: *blst.HashToG1(msg, dst, nil)}, nil
}

// ---- G2 ----

type g2Point struct{ p blst.P2 }

func (a *g2Point) Group() core.GroupID { return core.G2 }

func (a *g2Point) Add(q core.Point) core.Point {
	r := a.p
	r.AddAssign(&q.(*g2Point).p)
	return &g2Point{p: r}
}

func (a *g2Point) Sub(q core.Point) core.Point {
	r := a.p
	r.SubAssign(&q.(*g2Point).p)
	return &g2Point{p: r}
}

func (a *g2Point) Neg() core.Point {
	var r blst.P2
	r.SubAssign(&a.p)
	return &g2Point{p: r}
}

func (a *g2Point) Mul(s core.Scalar) core.Point {
	k := toBlst(s)
	defer func() { *k = blst.Scalar{} }()
	return &g2Point{p: *a.p.Mult(k)}
}

func (a *g2Point) bytes() []byte { return a.p.ToAffine().Compress() }

func (a *g2Point) Equal(q core.Point) bool {
	b, ok := q.(*g2Point)
	return ok && bytes.Equal(a.bytes(), b.bytes())
}

func (a *g2Point) IsIdentity() bool { return bytes.Equal(a.bytes(), g2InfBytes) }

func (a *g2Point) MarshalBinary() ([]byte, error) { return a.bytes(), nil }

func (a *g2Point) Wipe() { a.p = blst.P2{} }

func (a *g2Point) String() string { return "G2(" + short(a.bytes()) + ")" }

type g2Group struct{}

func (g2Group) ID() core.GroupID      { return core.G2 }
func (g2Group) Identity() core.Point  { return &g2Point{} }
func (g2Group) Generator() core.Point { return &g2Point{p: *blst.P2Generator()} }
func (g2Group) PointLen() int         { return G2Len }

func (g2Group) Unmarshal(b []byte) (core.Point, error) {
	if len(b) != G2Len {
		return nil, ErrInvalidInput
	}
	if bytes.Equal(b, g2InfBytes) {
		return &g2Point{}, nil
	}
	var aff blst.P2Affine
	if aff.Uncompress(b) == nil || !aff.InG2() {
		return nil, core.ErrInvalidPoint
	}
	var p blst.P2
	p.FromAffine(&aff)
	return &g2Point{p: p}, nil
}

func (g2Group) HashToPoint(msg, dst []byte) (core.Point, error) {
	return &g2Point{p: *blst.HashToG2(msg, dst, nil)}, nil
}

// ---- GT ----

// gtPoint is an element of the order-r subgroup of Fp12*, written additively.
type gtPoint struct{ v blst.Fp12 }

func gtOne() *gtPoint { return &gtPoint{v: blst.Fp12One()} }

func (a *gtPoint) Group() core.GroupID { return core.GT }

func (a *gtPoint) Add(q core.Point) core.Point {
	r := a.v
	b := q.(*gtPoint).v
	r.MulAssign(&b)
	return &gtPoint{v: r}
}

// Mul is square-and-multiply over the big-endian bits of s. It is only used on
// public values (Lagrange weights, partial decryptions), so it is not constant time.
func (a *gtPoint) Mul(s core.Scalar) core.Point {
	k := scalarField.Bytes(s)
	defer core.WipeBytes(k)
	acc := blst.Fp12One()
	base := a.v
	for _, byt := range k {
		for bit := 7; bit >= 0; bit-- {
			sq := acc
			acc.MulAssign(&sq)
			if (byt>>uint(bit))&1 == 1 {
				acc.MulAssign(&base)
			}
		}
	}
	return &gtPoint{v: acc}
}

// Neg is exponentiation by r-1; the binding exposes no Fp12 inverse.
func (a *gtPoint) Neg() core.Point {
	return a.Mul(scalarField.FromInt(-1))
}

func (a *gtPoint) Sub(q core.Point) core.Point { return a.Add(q.Neg()) }

func (a *gtPoint) Equal(q core.Point) bool {
	b, ok := q.(*gtPoint)
	return ok && bytes.Equal(a.v.ToBendian(), b.v.ToBendian())
}

func (a *gtPoint) IsIdentity() bool { return a.Equal(gtOne()) }

func (a *gtPoint) MarshalBinary() ([]byte, error) { return a.v.ToBendian(), nil }

func (a *gtPoint) Wipe() { a.v = blst.Fp12{} }

func (a *gtPoint) String() string { return "GT(" + short(a.v.ToBendian()) + ")" }

type gtGroup struct{ s *suite }

func (gtGroup) ID() core.GroupID     { return core.GT }
func (gtGroup) Identity() core.Point { return gtOne() }
func (gtGroup) PointLen() int        { return GTLen }

func (g gtGroup) Generator() core.Point {
	p, _ := g.s.Pair(g1Group{}.Generator(), g2Group{}.Generator())
	return p
}

// Unmarshal is not offered: the binding has no Fp12 decoder. Protocol values in GT
// are recomputed from their G1/G2 witnesses instead of being transmitted.
func (gtGroup) Unmarshal([]byte) (core.Point, error) { return nil, core.ErrNotSupported }

func (gtGroup) HashToPoint([]byte, []byte) (core.Point, error) { return nil, core.ErrNotSupported }
