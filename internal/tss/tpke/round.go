package tpke

import "context"

// Round binds one ciphertext to a session so that shares can be checked and
// combined as they arrive.
type Round struct {
	sess Session
	ct   *Ciphertext
	aad  []byte
}

func NewRound(sess Session, ct *Ciphertext, aad []byte) *Round {
	return &Round{sess: sess, ct: ct, aad: append([]byte(nil), aad...)}
}

// Threshold is the number of distinct shares Combine needs.
func (r *Round) Threshold() int { return r.sess.Params().Threshold + 1 }

func (r *Round) Ciphertext() *Ciphertext { return r.ct }

func (r *Round) Verify(ds *DecryptionShare) error { return VerifyDecryptionShare(r.sess, r.ct, ds) }

func (r *Round) Combine(ctx context.Context, shares []*DecryptionShare) ([]byte, error) {
	return Combine(ctx, r.sess, r.ct, r.aad, shares)
}
