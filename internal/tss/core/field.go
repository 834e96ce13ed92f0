package core

import (
	"io"
	"math/big"
	"sync"

	"go.dedis.ch/kyber/v4/group/mod"
)

// Field is the prime scalar field Z/rZ. Its elements are kyber mod.Int values,
// so any kyber.Scalar over the same modulus interoperates with it.
type Field struct {
	order *big.Int
	size  int

	rootOnce  sync.Once
	twoAdic   int
	maxRoot   *big.Int
	rootError error
}

// NewField returns the field of integers modulo order (order must be an odd prime).
func NewField(order *big.Int) *Field {
	o := new(big.Int).Set(order)
	return &Field{order: o, size: (o.BitLen() + 7) / 8}
}

// Order returns a copy of the field modulus.
func (f *Field) Order() *big.Int { return new(big.Int).Set(f.order) }

// ScalarLen is the fixed big-endian encoding length.
func (f *Field) ScalarLen() int { return f.size }

func (f *Field) Zero() Scalar { return mod.NewInt64(0, f.order) }
func (f *Field) One() Scalar  { return mod.NewInt64(1, f.order) }

func (f *Field) FromUint64(v uint64) Scalar {
	return mod.NewInt(new(big.Int).SetUint64(v), f.order)
}

// FromInt maps v (possibly negative) into the field.
func (f *Field) FromInt(v int) Scalar { return mod.NewInt64(int64(v), f.order) }

func (f *Field) FromBig(v *big.Int) Scalar { return mod.NewInt(v, f.order) }

// Random samples a uniform element from r. Twice the encoding length is read and
// reduced, which keeps the bias below 2^-|r|. A short read is a resource error.
func (f *Field) Random(r io.Reader) (Scalar, error) {
	if r == nil {
		return nil, ResourceError(ErrInsufficientRandomness, nil)
	}
	buf := make([]byte, 2*f.size)
	defer WipeBytes(buf)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ResourceError(ErrInsufficientRandomness, err)
	}
	v := new(big.Int).SetBytes(buf)
	v.Mod(v, f.order)
	s := mod.NewInt(v, f.order)
	wipeBig(v)
	return s, nil
}

// Unmarshal decodes a canonical big-endian scalar.
func (f *Field) Unmarshal(b []byte) (Scalar, error) {
	if len(b) != f.size {
		return nil, ErrInvalidScalar
	}
	v := new(big.Int).SetBytes(b)
	if v.Cmp(f.order) >= 0 {
		return nil, ErrInvalidScalar
	}
	s := mod.NewInt(v, f.order)
	wipeBig(v)
	return s, nil
}

// Bytes returns the fixed-length big-endian encoding of s.
func (f *Field) Bytes(s Scalar) []byte {
	b, err := s.MarshalBinary()
	if err != nil {
		return make([]byte, f.size)
	}
	if len(b) == f.size {
		return b
	}
	out := make([]byte, f.size)
	copy(out[f.size-len(b):], b)
	WipeBytes(b)
	return out
}

// Big returns s as an integer in [0, r).
func (f *Field) Big(s Scalar) *big.Int {
	if m, ok := s.(*mod.Int); ok {
		return new(big.Int).Set(&m.V)
	}
	b := f.Bytes(s)
	defer WipeBytes(b)
	return new(big.Int).SetBytes(b)
}

// Pow returns s^e.
func (f *Field) Pow(s Scalar, e *big.Int) Scalar {
	v := f.Big(s)
	r := new(big.Int).Exp(v, e, f.order)
	wipeBig(v)
	return mod.NewInt(r, f.order)
}

// Inv returns 1/s, or ErrInvalidScalar for zero.
func (f *Field) Inv(s Scalar) (Scalar, error) {
	if IsZero(s) {
		return nil, ErrInvalidScalar
	}
	return f.Zero().Inv(s), nil
}

// Equal compares two scalars by value.
func (f *Field) Equal(a, b Scalar) bool { return f.Big(a).Cmp(f.Big(b)) == 0 }

// TwoAdicity returns s with r-1 = 2^s * odd.
func (f *Field) TwoAdicity() int {
	f.initRoots()
	return f.twoAdic
}

// RootOfUnity returns a primitive 2^logN-th root of unity.
func (f *Field) RootOfUnity(logN int) (Scalar, error) {
	f.initRoots()
	if f.rootError != nil {
		return nil, f.rootError
	}
	if logN < 0 || logN > f.twoAdic {
		return nil, ErrNotSupported
	}
	e := new(big.Int).Lsh(big.NewInt(1), uint(f.twoAdic-logN))
	return mod.NewInt(new(big.Int).Exp(f.maxRoot, e, f.order), f.order), nil
}

func (f *Field) initRoots() {
	f.rootOnce.Do(func() {
		one := big.NewInt(1)
		q := new(big.Int).Sub(f.order, one)
		s := 0
		for q.Bit(0) == 0 && q.Sign() > 0 {
			q.Rsh(q, 1)
			s++
		}
		f.twoAdic = s
		// Euler: g^((r-1)/2) == -1 for a non-residue g.
		half := new(big.Int).Rsh(new(big.Int).Sub(f.order, one), 1)
		minusOne := new(big.Int).Sub(f.order, one)
		for g := int64(2); g < 1000; g++ {
			gb := big.NewInt(g)
			if new(big.Int).Exp(gb, half, f.order).Cmp(minusOne) == 0 {
				f.maxRoot = new(big.Int).Exp(gb, q, f.order)
				return
			}
		}
		f.rootError = ErrNotSupported
	})
}

// IsZero reports whether s is the additive identity.
func IsZero(s Scalar) bool {
	if m, ok := s.(*mod.Int); ok {
		return m.V.Sign() == 0
	}
	return s.Equal(s.Clone().Zero())
}

// WipeScalars overwrites the limbs of each scalar and leaves it at zero.
// Call it through defer so error returns are covered as well.
func WipeScalars(ss ...Scalar) {
	for _, s := range ss {
		if s == nil {
			continue
		}
		if m, ok := s.(*mod.Int); ok {
			wipeBig(&m.V)
			continue
		}
		s.Zero()
	}
}

// WipeBytes zeroes b in place.
func WipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func wipeBig(v *big.Int) {
	if v == nil {
		return
	}
	w := v.Bits()
	for i := range w {
		w[i] = 0
	}
	v.SetInt64(0)
}
