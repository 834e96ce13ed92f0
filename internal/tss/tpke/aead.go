package tpke

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
)

// keyMaterial is the HKDF output: ChaCha20-Poly1305 key followed by nonce.
// Every shared secret S is fresh per encryption, so a derived nonce is never reused.
type keyMaterial [chacha20poly1305.KeySize + chacha20poly1305.NonceSize]byte

func (k *keyMaterial) key() []byte   { return k[:chacha20poly1305.KeySize] }
func (k *keyMaterial) nonce() []byte { return k[chacha20poly1305.KeySize:] }
func (k *keyMaterial) wipe()         { core.WipeBytes(k[:]) }

// deriveKey expands S (in GT) with HKDF-SHA256, salted with the ciphertext commitment.
func deriveKey(s core.Point, salt []byte) (*keyMaterial, error) {
	ikm, err := s.MarshalBinary()
	if err != nil {
		return nil, err
	}
	defer core.WipeBytes(ikm)
	var km keyMaterial
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte(core.DSTKDF)), km[:]); err != nil {
		km.wipe()
		return nil, err
	}
	return &km, nil
}

func seal(s core.Point, salt, msg, aad []byte) ([]byte, error) {
	km, err := deriveKey(s, salt)
	if err != nil {
		return nil, err
	}
	defer km.wipe()
	a, err := chacha20poly1305.New(km.key())
	if err != nil {
		return nil, err
	}
	return a.Seal(nil, km.nonce(), msg, aad), nil
}

// open returns nil plaintext on any failure.
func open(s core.Point, salt, payload, aad []byte) ([]byte, error) {
	km, err := deriveKey(s, salt)
	if err != nil {
		return nil, err
	}
	defer km.wipe()
	a, err := chacha20poly1305.New(km.key())
	if err != nil {
		return nil, err
	}
	pt, err := a.Open(nil, km.nonce(), payload, aad)
	if err != nil {
		return nil, err
	}
	return pt, nil
}
