// Package tpke implements threshold public-key encryption under a DKG group
// key: encryption, per-validator decryption shares and their combination.
package tpke

import (
	"encoding/binary"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ciphertext: Commitment U = g^r (G1), AuthTag W = H(U, Payload, aad)^r (G2)
// and the AEAD-sealed Payload. W binds the payload and aad to r, which lets
// anyone check e(U, H) == e(g, W) before spending work on shares.
type Ciphertext struct {
	Commitment core.Point
	AuthTag    core.Point
	Payload    []byte
}

// Encrypt seals msg to the group key pk: S = e(pk^r, h) keys the AEAD.
func Encrypt(suite core.Suite, pk core.Point, msg, aad []byte, rand io.Reader) (*Ciphertext, error) {
	if !core.InGroup(suite.G1(), pk) || pk.IsIdentity() {
		return nil, core.ConfigError(core.ErrInvalidValidatorSet, fmt.Errorf("invalid group public key"))
	}
	r, err := suite.Field().Random(rand)
	if err != nil {
		return nil, err
	}
	defer core.WipeScalars(r)
	if core.IsZero(r) {
		return nil, core.ResourceError(core.ErrInsufficientRandomness, fmt.Errorf("zero nonce scalar"))
	}
	u := suite.G1().Generator().Mul(r)
	pkr := pk.Mul(r)
	defer pkr.Wipe()
	s, err := suite.Pair(pkr, suite.G2().Generator())
	if err != nil {
		return nil, err
	}
	defer s.Wipe()
	ub, err := u.MarshalBinary()
	if err != nil {
		return nil, err
	}
	payload, err := seal(s, ub, msg, aad)
	if err != nil {
		return nil, err
	}
	h, err := authPoint(suite, ub, payload, aad)
	if err != nil {
		return nil, err
	}
	return &Ciphertext{Commitment: u, AuthTag: h.Mul(r), Payload: payload}, nil
}

// authPoint hashes U ‖ len(payload) ‖ payload ‖ aad to G2.
func authPoint(suite core.Suite, ub, payload, aad []byte) (core.Point, error) {
	msg := make([]byte, 0, len(ub)+8+len(payload)+len(aad))
	msg = append(msg, ub...)
	msg = binary.BigEndian.AppendUint64(msg, uint64(len(payload)))
	msg = append(msg, payload...)
	msg = append(msg, aad...)
	return core.HashToCurve(suite.G2(), msg, core.DSTCiphertext)
}

// CheckCiphertext verifies e(U, H) == e(g, W) for the given aad.
func CheckCiphertext(suite core.Suite, ct *Ciphertext, aad []byte) error {
	bad := func(cause error) error {
		return core.VerifyError(core.ErrInvalidCiphertext, core.NoIndex, core.NoIndex, cause)
	}
	if ct == nil || !core.InGroup(suite.G1(), ct.Commitment) || !core.InGroup(suite.G2(), ct.AuthTag) {
		return bad(fmt.Errorf("malformed ciphertext"))
	}
	if ct.Commitment.IsIdentity() {
		return bad(fmt.Errorf("identity commitment"))
	}
	ub, err := ct.Commitment.MarshalBinary()
	if err != nil {
		return bad(err)
	}
	h, err := authPoint(suite, ub, ct.Payload, aad)
	if err != nil {
		return bad(err)
	}
	ok, err := core.PairingCheck(suite,
		[]core.Point{ct.Commitment, suite.G1().Generator().Neg()},
		[]core.Point{h, ct.AuthTag})
	if err != nil {
		return bad(err)
	}
	if !ok {
		return bad(fmt.Errorf("auth tag does not bind payload and aad"))
	}
	return nil
}

type ciphertextWire struct {
	Commitment []byte `json:"commitment"`
	AuthTag    []byte `json:"auth_tag"`
	Payload    []byte `json:"payload"`
}

func EncodeCiphertext(ct *Ciphertext) ([]byte, error) {
	if ct == nil {
		return nil, errors.New("nil ciphertext")
	}
	u, err := core.PointBytes(ct.Commitment)
	if err != nil {
		return nil, errors.Wrap(err, "commitment")
	}
	w, err := core.PointBytes(ct.AuthTag)
	if err != nil {
		return nil, errors.Wrap(err, "auth tag")
	}
	return json.Marshal(ciphertextWire{Commitment: u, AuthTag: w, Payload: ct.Payload})
}

func DecodeCiphertext(suite core.Suite, b []byte) (*Ciphertext, error) {
	var w ciphertextWire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, errors.Wrap(err, "decode ciphertext")
	}
	u, err := suite.G1().Unmarshal(w.Commitment)
	if err != nil {
		return nil, errors.Wrap(err, "decode ciphertext: commitment")
	}
	tag, err := suite.G2().Unmarshal(w.AuthTag)
	if err != nil {
		return nil, errors.Wrap(err, "decode ciphertext: auth tag")
	}
	return &Ciphertext{Commitment: u, AuthTag: tag, Payload: w.Payload}, nil
}
