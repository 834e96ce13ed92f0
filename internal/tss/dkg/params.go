package dkg

import (
	"fmt"
	"io"
	"sort"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
)

// Validator is a public session member. EncryptionKey = h^dk in G2.
type Validator struct {
	Index         int
	EncryptionKey core.Point
}

// Keypair is a validator's long-term PVSS key. dk never leaves the struct
// except through MarshalSecret for the key store.
type Keypair struct {
	Index         int
	EncryptionKey core.Point

	suite core.Suite
	dk    core.Scalar
}

// GenerateKeypair samples dk from r.
func GenerateKeypair(suite core.Suite, index int, r io.Reader) (*Keypair, error) {
	dk, err := suite.Field().Random(r)
	if err != nil {
		return nil, err
	}
	if core.IsZero(dk) {
		return nil, core.ResourceError(core.ErrInsufficientRandomness, fmt.Errorf("zero decryption key"))
	}
	return &Keypair{Index: index, EncryptionKey: suite.G2().Generator().Mul(dk), suite: suite, dk: dk}, nil
}

// KeypairFromSecret rebuilds a keypair from its encoded decryption key.
func KeypairFromSecret(suite core.Suite, index int, secret []byte) (*Keypair, error) {
	dk, err := suite.Field().Unmarshal(secret)
	if err != nil {
		return nil, err
	}
	if core.IsZero(dk) {
		return nil, core.ErrInvalidScalar
	}
	return &Keypair{Index: index, EncryptionKey: suite.G2().Generator().Mul(dk), suite: suite, dk: dk}, nil
}

func (k *Keypair) Validator() Validator {
	return Validator{Index: k.Index, EncryptionKey: k.EncryptionKey}
}

// Unblind returns p * dk^-1. The inverse is wiped before returning.
func (k *Keypair) Unblind(p core.Point) (core.Point, error) {
	if k.dk == nil {
		return nil, core.ErrInvalidScalar
	}
	inv, err := k.suite.Field().Inv(k.dk)
	if err != nil {
		return nil, err
	}
	defer core.WipeScalars(inv)
	return p.Mul(inv), nil
}

// MarshalSecret encodes dk; the caller must wipe the result.
func (k *Keypair) MarshalSecret() []byte { return k.suite.Field().Bytes(k.dk) }

// Wipe destroys dk; the keypair cannot unblind afterwards.
func (k *Keypair) Wipe() {
	core.WipeScalars(k.dk)
	k.dk = nil
}

// Params is the immutable description of one DKG instance.
type Params struct {
	Suite      core.Suite
	Threshold  int
	Validators []Validator
}

// NewParams sorts validators by index and validates the result.
func NewParams(suite core.Suite, threshold int, validators []Validator) (*Params, error) {
	vs := append([]Validator(nil), validators...)
	sort.Slice(vs, func(i, j int) bool { return vs[i].Index < vs[j].Index })
	p := &Params{Suite: suite, Threshold: threshold, Validators: vs}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// N is the number of validators.
func (p *Params) N() int { return len(p.Validators) }

// Validate checks 1 <= T < N and that validators hold indices 0..N-1 in order
// with valid G2 keys. It runs before any cryptographic work.
func (p *Params) Validate() error {
	if p == nil || p.Suite == nil {
		return core.ConfigError(core.ErrInvalidValidatorSet, fmt.Errorf("missing suite"))
	}
	n := len(p.Validators)
	if p.Threshold < 1 || p.Threshold >= n {
		return core.ConfigError(core.ErrInvalidThreshold, fmt.Errorf("threshold %d with %d validators", p.Threshold, n))
	}
	for i, v := range p.Validators {
		if v.Index != i {
			return core.ConfigError(core.ErrInvalidValidatorSet, fmt.Errorf("position %d holds index %d", i, v.Index))
		}
		if !core.InGroup(p.Suite.G2(), v.EncryptionKey) || v.EncryptionKey.IsIdentity() {
			return core.ConfigError(core.ErrInvalidValidatorSet, fmt.Errorf("validator %d: bad encryption key", i))
		}
	}
	return nil
}

// Point returns the evaluation point of validator i, x_i = i + 1.
func (p *Params) Point(i int) core.Scalar { return p.Suite.Field().FromUint64(uint64(i) + 1) }

// Points returns x_i for every validator.
func (p *Params) Points() []core.Scalar {
	out := make([]core.Scalar, len(p.Validators))
	for i := range out {
		out[i] = p.Point(i)
	}
	return out
}

func (p *Params) isMember(i int) bool { return i >= 0 && i < len(p.Validators) }

// commitmentAt evaluates Σ x^j F_j by Horner in the group.
func commitmentAt(commitment []core.Point, x core.Scalar) core.Point {
	acc := commitment[len(commitment)-1]
	for j := len(commitment) - 2; j >= 0; j-- {
		acc = acc.Mul(x).Add(commitment[j])
	}
	return acc
}
