package bls381

// This package provides the BLS12-381 backend for core.Suite. The real
// implementation wraps supranational/blst and is compiled with the "blst" build
// tag; without the tag New returns ErrNotImplemented so the protocol packages
// still build (and their curve-free parts still test) on machines without cgo.

import (
    "errors"
    "math/big"

    "github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
)

// Errors
var (
    ErrNotImplemented = core.ErrNotImplemented
    ErrInvalidInput   = errors.New("invalid input")
)

// Encoding sizes (compressed ZCash encoding for G1/G2, Fp12 big-endian for GT).
const (
    Name      = "bls12-381"
    ScalarLen = 32
    G1Len     = 48
    G2Len     = 96
    GTLen     = 576
)

var order, _ = new(big.Int).SetString("73eda753299d7d483339d80809a1d80553bda402fffe5bfeffffffff00000001", 16)

var scalarField = core.NewField(order)

// ScalarField returns the BLS12-381 scalar field. It does not need the blst tag.
func ScalarField() *core.Field { return scalarField }
