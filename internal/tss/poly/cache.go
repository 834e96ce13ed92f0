package poly

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
)

// DefaultCacheSize bounds the number of distinct index sets kept by a LagrangeCache.
const DefaultCacheSize = 128

// LagrangeCache memoises Lagrange-at-zero vectors per ordered point set.
// Combiners see the same quorum over and over, so the vectors are reused.
type LagrangeCache struct {
	f *core.Field
	c *lru.Cache[string, []core.Scalar]
}

func NewLagrangeCache(f *core.Field, size int) (*LagrangeCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, []core.Scalar](size)
	if err != nil {
		return nil, err
	}
	return &LagrangeCache{f: f, c: c}, nil
}

// AtZero returns copies of the cached coefficients, computing them on a miss.
func (lc *LagrangeCache) AtZero(ctx context.Context, points []core.Scalar) ([]core.Scalar, error) {
	var b strings.Builder
	for _, p := range points {
		b.Write(lc.f.Bytes(p))
	}
	key := b.String()
	if v, ok := lc.c.Get(key); ok {
		return cloneAll(v), nil
	}
	v, err := LagrangeCoefficientsAtZero(ctx, lc.f, points)
	if err != nil {
		return nil, err
	}
	lc.c.Add(key, v)
	return cloneAll(v), nil
}

func (lc *LagrangeCache) Len() int { return lc.c.Len() }

func cloneAll(v []core.Scalar) []core.Scalar {
	out := make([]core.Scalar, len(v))
	for i := range v {
		out[i] = v[i].Clone()
	}
	return out
}
