//go:build blst

package dkg

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
)

// recoveryFragments has every helper deal one update for target and apply the full set.
func recoveryFragments(t *testing.T, f *fixture, sess *Session, target int, helpers []int) []*PrivateShare {
	t.Helper()
	ctx := context.Background()
	var updates []*PVSSTranscript
	for _, d := range helpers {
		u, err := DealRecovery(ctx, f.params, d, target, rand.Reader)
		require.NoError(t, err)
		require.NoError(t, Verify(ctx, f.params, u, RequireRootAt(target)))
		require.True(t, u.Shares[target].IsIdentity())
		updates = append(updates, u)
	}
	out := make([]*PrivateShare, 0, len(helpers))
	for _, i := range helpers {
		ps, err := sess.PrivateShare(f.keys[i])
		require.NoError(t, err)
		fr, err := ApplyRecoveryUpdates(ctx, f.params, ps, f.keys[i], target, updates)
		require.NoError(t, err)
		require.False(t, fr.Value.Equal(ps.Value))
		out = append(out, fr)
	}
	return out
}

func TestShareRecovery_RestoresLostShare(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, 2)
	sess, err := NewSession(f.params)
	require.NoError(t, err)
	for _, tr := range f.dealAll(t) {
		require.NoError(t, sess.Receive(ctx, tr))
	}
	_, err = sess.Aggregate(ctx)
	require.NoError(t, err)
	want, err := sess.PrivateShare(f.keys[4])
	require.NoError(t, err)

	frags := recoveryFragments(t, f, sess, 4, []int{0, 1, 3})
	got, err := sess.RecoverPrivateShare(ctx, 4, frags)
	require.NoError(t, err)
	require.Equal(t, 4, got.Validator)
	require.True(t, got.Value.Equal(want.Value))
	require.Equal(t, sess.Tag(), got.SessionTag)

	// T fragments are not enough
	_, err = sess.RecoverPrivateShare(ctx, 4, frags[:2])
	require.ErrorIs(t, err, core.ErrRecoveryFailed)

	// un-updated shares do not interpolate to the target
	var plain []*PrivateShare
	for _, i := range []int{0, 1, 3} {
		ps, err := sess.PrivateShare(f.keys[i])
		require.NoError(t, err)
		plain = append(plain, ps)
	}
	plain[0] = frags[0]
	_, err = sess.RecoverPrivateShare(ctx, 4, plain)
	require.ErrorIs(t, err, core.ErrRecoveryFailed)
	var ce *core.Error
	require.ErrorAs(t, err, &ce)
	require.Equal(t, 4, ce.Validator)
}

func TestShareRecovery_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4, 1)
	_, err := DealRecovery(ctx, f.params, 1, 1, rand.Reader)
	require.ErrorIs(t, err, core.ErrInvalidValidatorSet)
	_, err = DealRecovery(ctx, f.params, 1, 7, rand.Reader)
	require.ErrorIs(t, err, core.ErrInvalidValidatorSet)

	// an ordinary transcript does not vanish at the target
	tr, err := Deal(ctx, f.params, 0, rand.Reader)
	require.NoError(t, err)
	err = Verify(ctx, f.params, tr, RequireRootAt(2))
	require.ErrorIs(t, err, core.ErrInvalidTranscript)
	require.Equal(t, []int{2}, FailedValidators(err))

	sess, err := NewSession(f.params)
	require.NoError(t, err)
	for _, tr := range f.dealAll(t) {
		require.NoError(t, sess.Receive(ctx, tr))
	}
	_, err = sess.Aggregate(ctx)
	require.NoError(t, err)
	ps, err := sess.PrivateShare(f.keys[0])
	require.NoError(t, err)

	u, err := DealRecovery(ctx, f.params, 1, 2, rand.Reader)
	require.NoError(t, err)
	_, err = ApplyRecoveryUpdates(ctx, f.params, ps, f.keys[0], 2, []*PVSSTranscript{u})
	require.ErrorIs(t, err, core.ErrInsufficientDealers)
	_, err = ApplyRecoveryUpdates(ctx, f.params, ps, f.keys[0], 2, []*PVSSTranscript{u, u})
	require.ErrorIs(t, err, core.ErrDuplicateDealer)
	_, err = ApplyRecoveryUpdates(ctx, f.params, ps, f.keys[1], 2, []*PVSSTranscript{u, tr})
	require.ErrorIs(t, err, core.ErrInvalidValidatorSet)
	_, err = ApplyRecoveryUpdates(ctx, f.params, ps, f.keys[0], 2, []*PVSSTranscript{u, tr})
	require.ErrorIs(t, err, core.ErrInvalidTranscript)

	// fragments from an older epoch are stale
	frags := recoveryFragments(t, f, sess, 3, []int{0, 1})
	sess.Supersede()
	_, err = sess.RecoverPrivateShare(ctx, 3, frags)
	require.ErrorIs(t, err, core.ErrStaleShare)
}
