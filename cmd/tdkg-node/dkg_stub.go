//go:build !blst

package main

import (
    "context"
    "time"

    "github.com/zmlAEQ/aequa-tdkg/internal/tss/core/bls381"
)

func runDKG(_ context.Context, _, _, _ string, _, _ time.Duration) error {
    return bls381.ErrNotImplemented
}
