package core

import (
    "errors"

    "go.dedis.ch/kyber/v4"
)

// 占位/能力错误。
var (
    ErrNotImplemented = errors.New("not implemented")
    ErrNotSupported   = errors.New("not supported by curve backend")
    ErrInvalidPoint   = errors.New("invalid point")
    ErrGroupMismatch  = errors.New("group mismatch")
)

// 域分离常量。
const (
    DSTCiphertext = "AEQ/TDKG/v1/CT-AUTH" // 密文认证标签 W = H(U||ct||aad)^r
    DSTKDF        = "AEQ/TDKG/v1/KDF"     // 共享秘密 -> 对称密钥
    DSTSession    = "AEQ/TDKG/v1/SESSION" // 会话标签
)

// IsValidDST 检查 dst 是否属于预设域分离常量。
func IsValidDST(dst string) bool {
    return dst == DSTCiphertext || dst == DSTKDF || dst == DSTSession
}

// GroupID identifies one of the three pairing groups.
type GroupID uint8

const (
    G1 GroupID = iota + 1
    G2
    GT
)

func (g GroupID) String() string {
    switch g {
    case G1:
        return "G1"
    case G2:
        return "G2"
    case GT:
        return "GT"
    }
    return "unknown"
}

// Scalar is an element of the prime-order scalar field shared by G1, G2 and GT.
type Scalar = kyber.Scalar

// Point is an element of G1, G2 or GT. All three groups are written additively,
// so for GT Add is the field product and Mul is exponentiation. Mixing points of
// different groups or different backends panics.
type Point interface {
    Group() GroupID
    Add(q Point) Point
    Sub(q Point) Point
    Neg() Point
    Mul(s Scalar) Point
    Equal(q Point) bool
    IsIdentity() bool
    MarshalBinary() ([]byte, error)
    // Wipe overwrites the element in place; the value must not be used afterwards.
    Wipe()
    String() string
}

// Group is one pairing group of a Suite.
type Group interface {
    ID() GroupID
    Identity() Point
    Generator() Point
    // Unmarshal decodes a compressed element and rejects points outside the prime-order subgroup.
    Unmarshal(b []byte) (Point, error)
    PointLen() int
    HashToPoint(msg, dst []byte) (Point, error)
}

// Suite is the capability set the protocol needs from a pairing-friendly curve:
// the scalar field, G1, G2, GT and the pairing e: G1 x G2 -> GT.
type Suite interface {
    Name() string
    Field() *Field
    G1() Group
    G2() Group
    GT() Group
    Pair(p, q Point) (Point, error)
    // PairingProduct returns Σ e(ps[i], qs[i]) in GT.
    PairingProduct(ps, qs []Point) (Point, error)
}

// PairingCheck reports whether Σ e(ps[i], qs[i]) is the identity of GT.
func PairingCheck(s Suite, ps, qs []Point) (bool, error) {
    r, err := s.PairingProduct(ps, qs)
    if err != nil {
        return false, err
    }
    return r.IsIdentity(), nil
}

// LinearCombination returns Σ scalars[i]*points[i] in g.
func LinearCombination(g Group, scalars []Scalar, points []Point) (Point, error) {
    if len(scalars) != len(points) {
        return nil, ErrGroupMismatch
    }
    acc := g.Identity()
    for i := range points {
        if points[i] == nil || points[i].Group() != g.ID() {
            return nil, ErrGroupMismatch
        }
        acc = acc.Add(points[i].Mul(scalars[i]))
    }
    return acc, nil
}

// InGroup reports whether p is a non-nil element of g.
func InGroup(g Group, p Point) bool { return p != nil && p.Group() == g.ID() }

// PointBytes 返回压缩编码；编码失败视为非法点。
func PointBytes(p Point) ([]byte, error) {
    if p == nil {
        return nil, ErrInvalidPoint
    }
    return p.MarshalBinary()
}
