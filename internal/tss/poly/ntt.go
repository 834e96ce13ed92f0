package poly

import (
	"math/big"
	"math/bits"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
)

// Operands with at least this many coefficients are multiplied via NTT.
const mulCutoff = 64

// mulNTT multiplies a and b with a radix-2 number theoretic transform. It
// reports false when the field has no root of unity of the required order.
func mulNTT(f *core.Field, a, b []core.Scalar) ([]core.Scalar, bool) {
	outLen := len(a) + len(b) - 1
	logN := bits.Len(uint(outLen - 1))
	n := 1 << logN
	w, err := f.RootOfUnity(logN)
	if err != nil {
		return nil, false
	}
	fa := padded(f, a, n)
	fb := padded(f, b, n)
	ntt(f, fa, w)
	ntt(f, fb, w)
	for i := range fa {
		fa[i].Mul(fa[i], fb[i])
	}
	wInv, _ := f.Inv(w)
	ntt(f, fa, wInv)
	nInv, _ := f.Inv(f.FromUint64(uint64(n)))
	for i := range fa {
		fa[i].Mul(fa[i], nInv)
	}
	return fa[:outLen], true
}

func padded(f *core.Field, a []core.Scalar, n int) []core.Scalar {
	out := make([]core.Scalar, n)
	for i := range out {
		if i < len(a) {
			out[i] = a[i].Clone()
		} else {
			out[i] = f.Zero()
		}
	}
	return out
}

// ntt transforms a in place (len(a) a power of two, w a primitive len(a)-th root).
func ntt(f *core.Field, a []core.Scalar, w core.Scalar) {
	n := len(a)
	if n <= 1 {
		return
	}
	logN := bits.Len(uint(n)) - 1
	for i := 0; i < n; i++ {
		j := int(bits.Reverse(uint(i)) >> (bits.UintSize - logN))
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}
	t := f.Zero()
	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		step := f.Pow(w, big.NewInt(int64(n/size)))
		for start := 0; start < n; start += size {
			tw := f.One()
			for k := 0; k < half; k++ {
				u := a[start+k]
				t.Mul(a[start+k+half], tw)
				a[start+k+half] = f.Zero().Sub(u, t)
				a[start+k] = f.Zero().Add(u, t)
				tw.Mul(tw, step)
			}
		}
	}
}
