package tpke

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
	"github.com/zmlAEQ/aequa-tdkg/internal/tss/dkg"
	"github.com/zmlAEQ/aequa-tdkg/pkg/logger"
	"github.com/zmlAEQ/aequa-tdkg/pkg/metrics"
)

// Session is the read-only view of a DKG session the decryption side needs.
// *dkg.Session implements it.
type Session interface {
	Tag() []byte
	Params() *dkg.Params
	Aggregated() (*dkg.AggregatedTranscript, error)
}

// ShareProof carries the checksum C_i = U^{1/dk_i} in G1.
type ShareProof struct {
	Checksum core.Point
}

// DecryptionShare is validator i's contribution D_i = e(U, Z_i) in GT.
type DecryptionShare struct {
	Validator    int
	PartialValue core.Point
	Proof        *ShareProof
	SessionTag   []byte
}

// CreateDecryptionShare computes D_i for ct. It fails with ErrStaleShare when
// the private share was derived under another session tag. With kp set the
// share carries a proof; the output is deterministic in its inputs.
func CreateDecryptionShare(sess Session, ct *Ciphertext, aad []byte, share *dkg.PrivateShare, kp *dkg.Keypair) (*DecryptionShare, error) {
	begin := time.Now()
	ds, err := createShare(sess, ct, aad, share, kp)
	if err != nil {
		metrics.Inc("tdkg_decrypt_share_total", map[string]string{"result": "error"})
		logger.WarnJ("tdkg_decrypt_share", map[string]any{"result": "error", "err": err.Error()})
		return nil, err
	}
	ms := float64(time.Since(begin).Milliseconds())
	metrics.Inc("tdkg_decrypt_share_total", map[string]string{"result": "ok"})
	metrics.ObserveSummary("tdkg_op_ms", map[string]string{"op": "decrypt_share"}, ms)
	logger.InfoJ("tdkg_decrypt_share", map[string]any{"result": "ok", "validator": ds.Validator, "proof": ds.Proof != nil, "latency_ms": ms})
	return ds, nil
}

func createShare(sess Session, ct *Ciphertext, aad []byte, share *dkg.PrivateShare, kp *dkg.Keypair) (*DecryptionShare, error) {
	if share == nil || share.Value == nil {
		return nil, core.ConfigError(core.ErrNotAggregated, fmt.Errorf("missing private share"))
	}
	tag := sess.Tag()
	if !bytes.Equal(share.SessionTag, tag) {
		return nil, core.VerifyError(core.ErrStaleShare, core.NoIndex, share.Validator, nil)
	}
	params := sess.Params()
	if err := CheckCiphertext(params.Suite, ct, aad); err != nil {
		return nil, err
	}
	d, err := params.Suite.Pair(ct.Commitment, share.Value)
	if err != nil {
		return nil, err
	}
	ds := &DecryptionShare{Validator: share.Validator, PartialValue: d, SessionTag: tag}
	if kp != nil {
		if kp.Index != share.Validator {
			return nil, core.ConfigError(core.ErrInvalidValidatorSet, fmt.Errorf("keypair %d for share %d", kp.Index, share.Validator))
		}
		c, err := kp.Unblind(ct.Commitment)
		if err != nil {
			return nil, err
		}
		ds.Proof = &ShareProof{Checksum: c}
	}
	return ds, nil
}

// VerifyDecryptionShare checks a proof-carrying share:
//
//	e(C_i, Y_i) == D_i  and  e(C_i, ek_i) == e(U, h)
//
// A share without a proof is only checked for shape.
func VerifyDecryptionShare(sess Session, ct *Ciphertext, ds *DecryptionShare) error {
	if ds == nil {
		return core.VerifyError(core.ErrInvalidDecryptionShare, core.NoIndex, core.NoIndex, fmt.Errorf("nil share"))
	}
	if !bytes.Equal(ds.SessionTag, sess.Tag()) {
		return core.VerifyError(core.ErrStaleShare, core.NoIndex, ds.Validator, nil)
	}
	params := sess.Params()
	if ds.Validator < 0 || ds.Validator >= params.N() {
		return core.VerifyError(core.ErrInvalidDecryptionShare, core.NoIndex, ds.Validator, fmt.Errorf("unknown validator"))
	}
	s := params.Suite
	bad := func(cause error) error {
		return core.VerifyError(core.ErrInvalidDecryptionShare, core.NoIndex, ds.Validator, cause)
	}
	if !core.InGroup(s.GT(), ds.PartialValue) {
		return bad(fmt.Errorf("partial value not in GT"))
	}
	if ds.Proof == nil {
		return nil
	}
	agg, err := sess.Aggregated()
	if err != nil {
		return err
	}
	c := ds.Proof.Checksum
	if !core.InGroup(s.G1(), c) || ct == nil || !core.InGroup(s.G1(), ct.Commitment) {
		return bad(fmt.Errorf("malformed share"))
	}
	got, err := s.Pair(c, agg.Shares[ds.Validator])
	if err != nil {
		return bad(err)
	}
	if !got.Equal(ds.PartialValue) {
		return bad(fmt.Errorf("partial value does not match checksum"))
	}
	ok, err := core.PairingCheck(s,
		[]core.Point{c, ct.Commitment.Neg()},
		[]core.Point{params.Validators[ds.Validator].EncryptionKey, s.G2().Generator()})
	if err != nil {
		return bad(err)
	}
	if !ok {
		return bad(fmt.Errorf("checksum does not match encryption key"))
	}
	return nil
}

// BatchVerifyDecryptionShares checks proof-carrying shares at once with
// random weights ρ_i:
//
//	Σ ρ_i D_i == Π e(ρ_i C_i, Y_i)  and  Π e(ρ_i C_i, ek_i) · e(-Σ ρ_i U, h) == 1
//
// When the batch does not hold every share is checked on its own so the
// offending validators are named.
func BatchVerifyDecryptionShares(sess Session, ct *Ciphertext, shares []*DecryptionShare, rand io.Reader) error {
	ok, err := batchVerify(sess, ct, shares, rand)
	if err != nil {
		return err
	}
	if ok {
		metrics.Inc("tdkg_share_batch_verify_total", map[string]string{"result": "ok"})
		return nil
	}
	metrics.Inc("tdkg_share_batch_verify_total", map[string]string{"result": "fallback"})
	var errs error
	for _, ds := range shares {
		errs = multierr.Append(errs, VerifyDecryptionShare(sess, ct, ds))
	}
	return errs
}

// batchVerify reports false for any malformed or proof-less share; only a
// randomness failure is an error.
func batchVerify(sess Session, ct *Ciphertext, shares []*DecryptionShare, rand io.Reader) (bool, error) {
	if len(shares) == 0 {
		return true, nil
	}
	params := sess.Params()
	s := params.Suite
	if ct == nil || !core.InGroup(s.G1(), ct.Commitment) {
		return false, nil
	}
	tag := sess.Tag()
	agg, err := sess.Aggregated()
	if err != nil {
		return false, nil
	}
	f := s.Field()
	n := len(shares)
	lhs := s.GT().Identity()
	weighted := make([]core.Point, n)
	ys := make([]core.Point, n)
	ps := make([]core.Point, 0, n+1)
	qs := make([]core.Point, 0, n+1)
	sum := f.Zero()
	for i, ds := range shares {
		if ds == nil || ds.Proof == nil || !bytes.Equal(ds.SessionTag, tag) ||
			ds.Validator < 0 || ds.Validator >= params.N() ||
			!core.InGroup(s.GT(), ds.PartialValue) || !core.InGroup(s.G1(), ds.Proof.Checksum) {
			return false, nil
		}
		rho, err := f.Random(rand)
		if err != nil {
			return false, err
		}
		sum.Add(sum, rho)
		lhs = lhs.Add(ds.PartialValue.Mul(rho))
		weighted[i] = ds.Proof.Checksum.Mul(rho)
		ys[i] = agg.Shares[ds.Validator]
		ps = append(ps, weighted[i])
		qs = append(qs, params.Validators[ds.Validator].EncryptionKey)
		core.WipeScalars(rho)
	}
	rhs, err := s.PairingProduct(weighted, ys)
	if err != nil || !rhs.Equal(lhs) {
		return false, nil
	}
	ps = append(ps, ct.Commitment.Mul(sum).Neg())
	qs = append(qs, s.G2().Generator())
	ok, err := core.PairingCheck(s, ps, qs)
	return err == nil && ok, nil
}

type shareWire struct {
	Validator  int    `json:"validator"`
	Checksum   []byte `json:"checksum"`
	SessionTag []byte `json:"session_tag,omitempty"`
}

// EncodeDecryptionShare serialises a proof-carrying share. D_i itself is not
// sent; the receiver recomputes it from the checksum.
func EncodeDecryptionShare(ds *DecryptionShare) ([]byte, error) {
	if ds == nil || ds.Proof == nil {
		return nil, errors.New("share without proof cannot be encoded")
	}
	c, err := core.PointBytes(ds.Proof.Checksum)
	if err != nil {
		return nil, errors.Wrap(err, "checksum")
	}
	return json.Marshal(shareWire{Validator: ds.Validator, Checksum: c, SessionTag: ds.SessionTag})
}

// DecodeDecryptionShare parses a share and rebuilds D_i = e(C_i, Y_i) from the
// session aggregate. The result still needs VerifyDecryptionShare.
func DecodeDecryptionShare(sess Session, b []byte) (*DecryptionShare, error) {
	var w shareWire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, errors.Wrap(err, "decode share")
	}
	params := sess.Params()
	if w.Validator < 0 || w.Validator >= params.N() {
		return nil, errors.Errorf("decode share: unknown validator %d", w.Validator)
	}
	c, err := params.Suite.G1().Unmarshal(w.Checksum)
	if err != nil {
		return nil, errors.Wrap(err, "decode share: checksum")
	}
	agg, err := sess.Aggregated()
	if err != nil {
		return nil, errors.Wrap(err, "decode share")
	}
	d, err := params.Suite.Pair(c, agg.Shares[w.Validator])
	if err != nil {
		return nil, errors.Wrap(err, "decode share")
	}
	return &DecryptionShare{Validator: w.Validator, PartialValue: d, Proof: &ShareProof{Checksum: c}, SessionTag: w.SessionTag}, nil
}
