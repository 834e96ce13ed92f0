//go:build !blst

package bls381

import "github.com/zmlAEQ/aequa-tdkg/internal/tss/core"

// New is unavailable without the blst build tag.
func New() (core.Suite, error) { return nil, ErrNotImplemented }
