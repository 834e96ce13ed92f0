//go:build blst

package tpke

import (
	"bytes"
	"context"
	"crypto/rand"
	mrand "math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core/bls381"
	"github.com/zmlAEQ/aequa-tdkg/internal/tss/dkg"
)

type fixture struct {
	suite  core.Suite
	sess   *dkg.Session
	keys   []*dkg.Keypair
	shares []*dkg.PrivateShare
	pk     core.Point
}

func newFixture(t testing.TB, n, thr int) *fixture {
	t.Helper()
	return newFixtureDealers(t, n, thr, n)
}

// newFixtureDealers aggregates transcripts from the first dealers validators only.
func newFixtureDealers(t testing.TB, n, thr, dealers int) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := bls381.New()
	require.NoError(t, err)
	keys := make([]*dkg.Keypair, n)
	vs := make([]dkg.Validator, n)
	for i := range keys {
		keys[i], err = dkg.GenerateKeypair(s, i, rand.Reader)
		require.NoError(t, err)
		vs[i] = keys[i].Validator()
	}
	params, err := dkg.NewParams(s, thr, vs)
	require.NoError(t, err)
	sess, err := dkg.NewSession(params)
	require.NoError(t, err)
	for i := 0; i < dealers; i++ {
		tr, err := dkg.Deal(ctx, params, i, rand.Reader)
		require.NoError(t, err)
		require.NoError(t, sess.Receive(ctx, tr))
	}
	agg, err := sess.Aggregate(ctx)
	require.NoError(t, err)
	f := &fixture{suite: s, sess: sess, keys: keys, pk: agg.PublicKey()}
	f.refreshShares(t)
	return f
}

func (f *fixture) refreshShares(t testing.TB) {
	t.Helper()
	f.shares = make([]*dkg.PrivateShare, len(f.keys))
	for i, kp := range f.keys {
		ps, err := f.sess.PrivateShare(kp)
		require.NoError(t, err)
		f.shares[i] = ps
	}
}

func (f *fixture) encrypt(t testing.TB, msg, aad []byte) *Ciphertext {
	t.Helper()
	ct, err := Encrypt(f.suite, f.pk, msg, aad, rand.Reader)
	require.NoError(t, err)
	return ct
}

// decShares builds shares for the given validators, with proofs when proof is set.
func (f *fixture) decShares(t testing.TB, ct *Ciphertext, aad []byte, proof bool, who ...int) []*DecryptionShare {
	t.Helper()
	out := make([]*DecryptionShare, 0, len(who))
	for _, i := range who {
		var kp *dkg.Keypair
		if proof {
			kp = f.keys[i]
		}
		ds, err := CreateDecryptionShare(f.sess, ct, aad, f.shares[i], kp)
		require.NoError(t, err)
		out = append(out, ds)
	}
	return out
}

func TestEncryptCombine_Hello(t *testing.T) {
	f := newFixture(t, 4, 1)
	aad := []byte("block-42")
	ct := f.encrypt(t, []byte("hello"), aad)
	require.NoError(t, CheckCiphertext(f.suite, ct, aad))

	ds := f.decShares(t, ct, aad, true, 0, 3)
	for _, d := range ds {
		require.NoError(t, VerifyDecryptionShare(f.sess, ct, d))
	}
	pt, err := Combine(context.Background(), f.sess, ct, aad, ds)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), pt)
}

func TestCombine_EverySubsetOfThresholdPlusOne(t *testing.T) {
	f := newFixture(t, 5, 2)
	msg := []byte("any three of five")
	ct := f.encrypt(t, msg, nil)
	all := f.decShares(t, ct, nil, true, 0, 1, 2, 3, 4)
	ctx := context.Background()
	for a := 0; a < 5; a++ {
		for b := a + 1; b < 5; b++ {
			for c := b + 1; c < 5; c++ {
				pt, err := Combine(ctx, f.sess, ct, nil, []*DecryptionShare{all[c], all[a], all[b]})
				require.NoError(t, err, "subset %d,%d,%d", a, b, c)
				require.Equal(t, msg, pt)
			}
		}
	}
	// every share at once
	pt, err := Combine(ctx, f.sess, ct, nil, all)
	require.NoError(t, err)
	require.Equal(t, msg, pt)
}

func TestCombine_WithoutProofs(t *testing.T) {
	f := newFixture(t, 4, 1)
	ct := f.encrypt(t, []byte("slow path"), nil)
	ds := f.decShares(t, ct, nil, false, 1, 2)
	for _, d := range ds {
		require.Nil(t, d.Proof)
		require.NoError(t, VerifyDecryptionShare(f.sess, ct, d))
	}
	pt, err := Combine(context.Background(), f.sess, ct, nil, ds)
	require.NoError(t, err)
	require.Equal(t, []byte("slow path"), pt)

	// mixed proof / no-proof shares take the GT path too
	mixed := append(f.decShares(t, ct, nil, true, 0), ds[0])
	pt, err = Combine(context.Background(), f.sess, ct, nil, mixed)
	require.NoError(t, err)
	require.Equal(t, []byte("slow path"), pt)
}

func TestCombine_InsufficientShares(t *testing.T) {
	f := newFixture(t, 4, 2)
	ct := f.encrypt(t, []byte("x"), nil)
	ds := f.decShares(t, ct, nil, true, 0, 1)
	_, err := Combine(context.Background(), f.sess, ct, nil, ds)
	require.ErrorIs(t, err, core.ErrInsufficientShares)

	// duplicates do not count
	_, err = Combine(context.Background(), f.sess, ct, nil, []*DecryptionShare{ds[0], ds[1], ds[0]})
	require.ErrorIs(t, err, core.ErrInsufficientShares)
}

func TestCombine_ThreeDealersAnyTwoOfThree(t *testing.T) {
	f := newFixtureDealers(t, 4, 1, 3)
	agg, err := f.sess.Aggregated()
	require.NoError(t, err)
	require.Len(t, agg.Dealers, 3)

	aad := []byte("aad")
	ct := f.encrypt(t, []byte("hello"), aad)
	all := f.decShares(t, ct, aad, true, 0, 1, 2)
	ctx := context.Background()
	for a := 0; a < 3; a++ {
		for b := a + 1; b < 3; b++ {
			pt, err := Combine(ctx, f.sess, ct, aad, []*DecryptionShare{all[a], all[b]})
			require.NoError(t, err, "pair %d,%d", a, b)
			require.Equal(t, []byte("hello"), pt)
		}
		pt, err := Combine(ctx, f.sess, ct, aad, all[a:a+1])
		require.ErrorIs(t, err, core.ErrInsufficientShares)
		require.Nil(t, pt)
	}
}

func TestCombine_RandomSubsetsUpToThresholdFail(t *testing.T) {
	const n, thr = 7, 3
	f := newFixture(t, n, thr)
	ct := f.encrypt(t, []byte("needs four"), nil)
	all := f.decShares(t, ct, nil, true, 0, 1, 2, 3, 4, 5, 6)
	rng := mrand.New(mrand.NewPCG(1, 2))
	for round := 0; round < 64; round++ {
		k := rng.IntN(thr + 1)
		var sub []*DecryptionShare
		for _, i := range rng.Perm(n)[:k] {
			sub = append(sub, all[i])
		}
		// repeats of a validator never add up to a quorum
		if k > 0 {
			sub = append(sub, sub[0], sub[k-1])
		}
		pt, err := Combine(context.Background(), f.sess, ct, nil, sub)
		require.ErrorIs(t, err, core.ErrInsufficientShares, "round %d k=%d", round, k)
		require.Nil(t, pt)
	}
}

func TestCombine_MalformedPartialValue(t *testing.T) {
	f := newFixture(t, 4, 1)
	ct := f.encrypt(t, []byte("shape"), nil)
	for _, proof := range []bool{false, true} {
		for name, pv := range map[string]core.Point{"nil": nil, "g1": f.suite.G1().Generator()} {
			ds := f.decShares(t, ct, nil, proof, 0, 1)
			ds[1].PartialValue = pv
			err := VerifyDecryptionShare(f.sess, ct, ds[1])
			require.ErrorIs(t, err, core.ErrInvalidDecryptionShare, "%s proof=%v", name, proof)

			var pt []byte
			require.NotPanics(t, func() { pt, err = Combine(context.Background(), f.sess, ct, nil, ds) })
			require.ErrorIs(t, err, core.ErrInvalidDecryptionShare)
			require.Nil(t, pt)
			var e *core.Error
			require.ErrorAs(t, err, &e)
			require.Equal(t, 1, e.Validator)
		}
	}
}

func TestCombine_LaterValidShareReplacesInvalid(t *testing.T) {
	f := newFixture(t, 4, 1)
	ct := f.encrypt(t, []byte("second try"), nil)
	ds := f.decShares(t, ct, nil, true, 0, 1)
	forged := *ds[0]
	forged.Proof = ds[1].Proof

	pt, err := Combine(context.Background(), f.sess, ct, nil, []*DecryptionShare{&forged, ds[1], ds[0]})
	require.NoError(t, err)
	require.Equal(t, []byte("second try"), pt)

	// no valid share for validator 0 at all
	_, err = Combine(context.Background(), f.sess, ct, nil, []*DecryptionShare{&forged, ds[1], &forged})
	require.ErrorIs(t, err, core.ErrInvalidDecryptionShare)
}

func TestBatchVerifyDecryptionShares(t *testing.T) {
	f := newFixture(t, 5, 2)
	ct := f.encrypt(t, []byte("batch"), nil)
	ds := f.decShares(t, ct, nil, true, 0, 1, 2, 3)
	require.NoError(t, BatchVerifyDecryptionShares(f.sess, ct, ds, rand.Reader))
	require.NoError(t, BatchVerifyDecryptionShares(f.sess, ct, nil, rand.Reader))

	forged := *ds[2]
	forged.Proof = ds[3].Proof
	bad := []*DecryptionShare{ds[0], ds[1], &forged, ds[3]}
	err := BatchVerifyDecryptionShares(f.sess, ct, bad, rand.Reader)
	require.ErrorIs(t, err, core.ErrInvalidDecryptionShare)
	var e *core.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, 2, e.Validator)

	// proof-less shares drop to the per-share path, which accepts them
	mixed := append(f.decShares(t, ct, nil, false, 4), ds[0])
	require.NoError(t, BatchVerifyDecryptionShares(f.sess, ct, mixed, rand.Reader))

	_, err = batchVerify(f.sess, ct, ds, bytes.NewReader(nil))
	require.ErrorIs(t, err, core.ErrInsufficientRandomness)
}

func TestCombine_WrongAAD(t *testing.T) {
	f := newFixture(t, 4, 1)
	ct := f.encrypt(t, []byte("bound"), []byte("aad-1"))
	_, err := CreateDecryptionShare(f.sess, ct, []byte("aad-2"), f.shares[0], f.keys[0])
	require.ErrorIs(t, err, core.ErrInvalidCiphertext)

	ds := f.decShares(t, ct, []byte("aad-1"), true, 0, 1)
	pt, err := Combine(context.Background(), f.sess, ct, []byte("aad-2"), ds)
	require.ErrorIs(t, err, core.ErrInvalidCiphertext)
	require.Nil(t, pt)
}

func TestCombine_TamperedPayloadFailsCheck(t *testing.T) {
	f := newFixture(t, 4, 1)
	ct := f.encrypt(t, []byte("payload"), nil)
	ds := f.decShares(t, ct, nil, true, 0, 1)
	bad := *ct
	bad.Payload = bytes.Clone(ct.Payload)
	bad.Payload[0] ^= 1
	_, err := Combine(context.Background(), f.sess, &bad, nil, ds)
	require.ErrorIs(t, err, core.ErrInvalidCiphertext)
}

func TestCombine_DecryptionFailedOnWrongPartials(t *testing.T) {
	f := newFixture(t, 4, 1)
	ct := f.encrypt(t, []byte("secret"), nil)
	ds := f.decShares(t, ct, nil, false, 0, 1)
	// relabel: the partial values no longer match their Lagrange weights
	ds[0].Validator, ds[1].Validator = 2, 3
	pt, err := Combine(context.Background(), f.sess, ct, nil, ds)
	require.ErrorIs(t, err, core.ErrDecryptionFailed)
	require.Equal(t, core.KindVerification, core.KindOf(err))
	require.Nil(t, pt)
}

func TestVerifyDecryptionShare_BadProof(t *testing.T) {
	f := newFixture(t, 4, 1)
	ct := f.encrypt(t, []byte("m"), nil)
	ds := f.decShares(t, ct, nil, true, 0, 1, 2)

	swapped := *ds[0]
	swapped.Proof = ds[1].Proof
	err := VerifyDecryptionShare(f.sess, ct, &swapped)
	require.ErrorIs(t, err, core.ErrInvalidDecryptionShare)
	var e *core.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, 0, e.Validator)

	// a keypair for another validator is refused at creation
	_, err = CreateDecryptionShare(f.sess, ct, nil, f.shares[0], f.keys[1])
	require.ErrorIs(t, err, core.ErrInvalidValidatorSet)

	_, err = Combine(context.Background(), f.sess, ct, nil, []*DecryptionShare{&swapped, ds[1], ds[2]})
	require.ErrorIs(t, err, core.ErrInvalidDecryptionShare)

	require.ErrorIs(t, VerifyDecryptionShare(f.sess, ct, nil), core.ErrInvalidDecryptionShare)
	unknown := *ds[1]
	unknown.Validator = 9
	require.ErrorIs(t, VerifyDecryptionShare(f.sess, ct, &unknown), core.ErrInvalidDecryptionShare)
}

func TestDecryptionShare_StaleAfterSupersede(t *testing.T) {
	f := newFixture(t, 4, 1)
	ct := f.encrypt(t, []byte("epoch"), nil)
	old := f.decShares(t, ct, nil, true, 0, 1)

	f.sess.Supersede()
	_, err := CreateDecryptionShare(f.sess, ct, nil, f.shares[0], f.keys[0])
	require.ErrorIs(t, err, core.ErrStaleShare)
	require.ErrorIs(t, VerifyDecryptionShare(f.sess, ct, old[0]), core.ErrStaleShare)
	_, err = Combine(context.Background(), f.sess, ct, nil, old)
	require.ErrorIs(t, err, core.ErrStaleShare)

	f.refreshShares(t)
	pt, err := Combine(context.Background(), f.sess, ct, nil, f.decShares(t, ct, nil, true, 2, 3))
	require.NoError(t, err)
	require.Equal(t, []byte("epoch"), pt)
}

func TestDecryptionShare_StaleAfterRefresh(t *testing.T) {
	f := newFixture(t, 4, 1)
	ctx := context.Background()
	params := f.sess.Params()
	var updates []*dkg.PVSSTranscript
	for i := 0; i < 2; i++ {
		u, err := dkg.DealRefresh(ctx, params, i, rand.Reader)
		require.NoError(t, err)
		updates = append(updates, u)
	}
	before := f.shares[0]
	require.NoError(t, f.sess.Refresh(ctx, updates))

	ct := f.encrypt(t, []byte("same key"), nil)
	_, err := CreateDecryptionShare(f.sess, ct, nil, before, f.keys[0])
	require.ErrorIs(t, err, core.ErrStaleShare)

	f.refreshShares(t)
	pt, err := Combine(ctx, f.sess, ct, nil, f.decShares(t, ct, nil, true, 0, 3))
	require.NoError(t, err)
	require.Equal(t, []byte("same key"), pt)
}

func TestCreateDecryptionShare_Deterministic(t *testing.T) {
	f := newFixture(t, 3, 1)
	ct := f.encrypt(t, []byte("d"), nil)
	a := f.decShares(t, ct, nil, true, 1)[0]
	b := f.decShares(t, ct, nil, true, 1)[0]
	require.True(t, a.PartialValue.Equal(b.PartialValue))
	require.True(t, a.Proof.Checksum.Equal(b.Proof.Checksum))
	ea, err := EncodeDecryptionShare(a)
	require.NoError(t, err)
	eb, err := EncodeDecryptionShare(b)
	require.NoError(t, err)
	require.Equal(t, ea, eb)
}

func TestEncrypt_Randomised(t *testing.T) {
	f := newFixture(t, 3, 1)
	a := f.encrypt(t, []byte("same"), nil)
	b := f.encrypt(t, []byte("same"), nil)
	require.False(t, a.Commitment.Equal(b.Commitment))
	require.NotEqual(t, a.Payload, b.Payload)
	// wiping pk^r leaves the group key intact
	agg, err := f.sess.Aggregated()
	require.NoError(t, err)
	require.True(t, f.pk.Equal(agg.PublicKey()))
}

func TestEncrypt_InvalidKey(t *testing.T) {
	f := newFixture(t, 3, 1)
	_, err := Encrypt(f.suite, f.suite.G1().Identity(), []byte("m"), nil, rand.Reader)
	require.ErrorIs(t, err, core.ErrInvalidValidatorSet)
	_, err = Encrypt(f.suite, f.suite.G2().Generator(), []byte("m"), nil, rand.Reader)
	require.ErrorIs(t, err, core.ErrInvalidValidatorSet)
	_, err = Encrypt(f.suite, f.pk, []byte("m"), nil, bytes.NewReader(nil))
	require.ErrorIs(t, err, core.ErrInsufficientRandomness)
}

func TestCodec_CiphertextAndShare(t *testing.T) {
	f := newFixture(t, 4, 1)
	aad := []byte("wire")
	ct := f.encrypt(t, []byte("over the wire"), aad)
	b, err := EncodeCiphertext(ct)
	require.NoError(t, err)
	got, err := DecodeCiphertext(f.suite, b)
	require.NoError(t, err)
	require.True(t, got.Commitment.Equal(ct.Commitment))
	require.True(t, got.AuthTag.Equal(ct.AuthTag))
	require.Equal(t, ct.Payload, got.Payload)

	var wire []*DecryptionShare
	for _, ds := range f.decShares(t, got, aad, true, 1, 2) {
		enc, err := EncodeDecryptionShare(ds)
		require.NoError(t, err)
		dec, err := DecodeDecryptionShare(f.sess, enc)
		require.NoError(t, err)
		require.True(t, dec.PartialValue.Equal(ds.PartialValue))
		require.NoError(t, VerifyDecryptionShare(f.sess, got, dec))
		wire = append(wire, dec)
	}
	pt, err := Combine(context.Background(), f.sess, got, aad, wire)
	require.NoError(t, err)
	require.Equal(t, []byte("over the wire"), pt)

	noProof := f.decShares(t, got, aad, false, 0)[0]
	_, err = EncodeDecryptionShare(noProof)
	require.Error(t, err)
	_, err = DecodeCiphertext(f.suite, []byte(`{"commitment":"AA=="}`))
	require.Error(t, err)
}

func TestRound(t *testing.T) {
	f := newFixture(t, 4, 1)
	ct := f.encrypt(t, []byte("round"), nil)
	r := NewRound(f.sess, ct, nil)
	require.Equal(t, 2, r.Threshold())
	require.Same(t, ct, r.Ciphertext())
	ds := f.decShares(t, ct, nil, true, 1, 3)
	for _, d := range ds {
		require.NoError(t, r.Verify(d))
	}
	pt, err := r.Combine(context.Background(), ds)
	require.NoError(t, err)
	require.Equal(t, []byte("round"), pt)
}

func BenchmarkCombine_7of10(b *testing.B) {
	f := newFixture(b, 10, 6)
	ct := f.encrypt(b, []byte("bench"), nil)
	ds := f.decShares(b, ct, nil, true, 0, 1, 2, 3, 4, 5, 6)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Combine(context.Background(), f.sess, ct, nil, ds); err != nil {
			b.Fatal(err)
		}
	}
}
