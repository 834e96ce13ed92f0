//go:build blst

package dkg

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func runNodes(t *testing.T, f *fixture, ex Exchange, id uuid.UUID, nodes []int, dir string) []*AggregatedTranscript {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	out := make([]*AggregatedTranscript, len(nodes))
	eg, ectx := errgroup.WithContext(ctx)
	for k, i := range nodes {
		k, i := k, i
		eg.Go(func() error {
			s, err := NewSessionWithID(f.params, id, 0)
			if err != nil {
				return err
			}
			r, err := NewRunner(s, f.keys[i], ex, rand.Reader,
				WithPollInterval(5*time.Millisecond),
				WithGrace(10*time.Second),
				WithKeyStore(NewKeyStore(filepath.Join(dir, fmt.Sprintf("keyshare-%d.dat", i)))),
				WithSnapshots(NewSessionStore(filepath.Join(dir, fmt.Sprintf("session-%d", i)))))
			if err != nil {
				return err
			}
			agg, err := r.Run(ectx)
			out[k] = agg
			return err
		})
	}
	require.NoError(t, eg.Wait())
	return out
}

func TestRunner_AllNodesAgree(t *testing.T) {
	f := newFixture(t, 4, 1)
	dir := t.TempDir()
	id := uuid.New()
	aggs := runNodes(t, f, NewDirExchange(filepath.Join(dir, "exchange")), id, []int{0, 1, 2, 3}, dir)
	for _, a := range aggs[1:] {
		require.True(t, aggs[0].Equal(a))
	}
	require.Equal(t, []int{0, 1, 2, 3}, aggs[0].Dealers)

	ks, err := NewKeyStore(filepath.Join(dir, "keyshare-2.dat")).LoadKeyShare(context.Background())
	require.NoError(t, err)
	require.Equal(t, id.String(), ks.SessionID)
	pk, err := aggs[0].PublicKey().MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, pk, ks.PublicKey)

	// a restarted node resumes from its snapshot without dealing again
	s, err := RestoreSession(context.Background(), NewSessionStore(filepath.Join(dir, "session-1")), f.params, id)
	require.NoError(t, err)
	r, err := NewRunner(s, f.keys[1], NewDirExchange(filepath.Join(dir, "exchange")), failingReader{})
	require.NoError(t, err)
	again, err := r.Run(context.Background())
	require.NoError(t, err)
	require.True(t, again.Equal(aggs[1]))
}

func TestRunner_RejectsBadDealer(t *testing.T) {
	f := newFixture(t, 4, 1)
	dir := t.TempDir()
	ex := NewDirExchange(filepath.Join(dir, "exchange"))

	bad, err := Deal(context.Background(), f.params, 3, rand.Reader)
	require.NoError(t, err)
	bad.Shares[0] = bad.Shares[1]
	require.NoError(t, ex.Publish(context.Background(), bad))
	// undecodable files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "exchange", "transcript-9.json"), []byte("junk"), 0o644))

	aggs := runNodes(t, f, ex, uuid.New(), []int{0, 1, 2}, dir)
	for _, a := range aggs {
		require.Equal(t, []int{0, 1, 2}, a.Dealers)
		require.True(t, aggs[0].Equal(a))
	}
}

func TestRunner_Cancelled(t *testing.T) {
	f := newFixture(t, 3, 1)
	s, err := NewSession(f.params)
	require.NoError(t, err)
	r, err := NewRunner(s, f.keys[0], NewDirExchange(t.TempDir()), rand.Reader, WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, fmt.Errorf("no randomness") }
