package dkg

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
	"github.com/zmlAEQ/aequa-tdkg/pkg/logger"
	"github.com/zmlAEQ/aequa-tdkg/pkg/metrics"
)

// Session is one caller-owned DKG instance: fixed params, an id and an epoch,
// the transcripts accepted so far and, once aggregated, the aggregate. Its
// methods are safe for concurrent use; separate sessions share no state.
type Session struct {
	mu          sync.Mutex
	id          uuid.UUID
	epoch       uint64
	params      *Params
	transcripts map[int]*PVSSTranscript
	agg         *AggregatedTranscript
	tag         []byte
}

// NewSession starts a session with a fresh id at epoch 0.
func NewSession(params *Params) (*Session, error) {
	return NewSessionWithID(params, uuid.New(), 0)
}

// NewSessionWithID starts a session with a known id and epoch, e.g. from config.
func NewSessionWithID(params *Params, id uuid.UUID, epoch uint64) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	s := &Session{id: id, epoch: epoch, params: params, transcripts: map[int]*PVSSTranscript{}}
	s.retag()
	metrics.Inc("tss_sessions_total", map[string]string{"result": "start"})
	logger.InfoJ("tdkg_session", map[string]any{"op": "start", "session": id.String(), "epoch": epoch, "n": params.N(), "t": params.Threshold})
	return s, nil
}

func (s *Session) ID() uuid.UUID   { return s.id }
func (s *Session) Params() *Params { return s.params }

func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Tag is blake3(id, epoch, threshold, validator keys, group key once known).
// Private and decryption shares carry it; a different tag means stale.
func (s *Session) Tag() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.tag)
}

// retag recomputes the tag; callers hold mu.
func (s *Session) retag() {
	h := blake3.New(32, nil)
	_, _ = h.Write([]byte(core.DSTSession))
	_, _ = h.Write(s.id[:])
	var u [8]byte
	binary.BigEndian.PutUint64(u[:], s.epoch)
	_, _ = h.Write(u[:])
	binary.BigEndian.PutUint64(u[:], uint64(s.params.Threshold))
	_, _ = h.Write(u[:])
	for _, v := range s.params.Validators {
		b, _ := v.EncryptionKey.MarshalBinary()
		_, _ = h.Write(b)
	}
	if s.agg != nil {
		b, _ := s.agg.PublicKey().MarshalBinary()
		_, _ = h.Write(b)
	}
	s.tag = h.Sum(nil)
	if s.agg != nil {
		s.agg.SessionTag = bytes.Clone(s.tag)
	}
}

// Deal creates this node's transcript and records it.
func (s *Session) Deal(ctx context.Context, dealer int, rand io.Reader) (*PVSSTranscript, error) {
	t, err := Deal(ctx, s.params, dealer, rand)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storeLocked(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Receive verifies t and records it. A second transcript from the same dealer
// is rejected, never merged.
func (s *Session) Receive(ctx context.Context, t *PVSSTranscript) error {
	if t == nil {
		return core.VerifyError(core.ErrInvalidTranscript, core.NoIndex, core.NoIndex, fmt.Errorf("nil transcript"))
	}
	s.mu.Lock()
	_, dup := s.transcripts[t.Dealer]
	s.mu.Unlock()
	if dup {
		return core.VerifyError(core.ErrDuplicateDealer, t.Dealer, core.NoIndex, nil)
	}
	if err := Verify(ctx, s.params, t); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(t)
}

func (s *Session) storeLocked(t *PVSSTranscript) error {
	if _, dup := s.transcripts[t.Dealer]; dup {
		return core.VerifyError(core.ErrDuplicateDealer, t.Dealer, core.NoIndex, nil)
	}
	if s.agg != nil {
		return core.VerifyError(core.ErrInvalidTranscript, t.Dealer, core.NoIndex, fmt.Errorf("session already aggregated"))
	}
	s.transcripts[t.Dealer] = t
	return nil
}

// Ready reports whether T+1 transcripts have been accepted.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transcripts) >= s.params.Threshold+1
}

// Transcripts returns the accepted transcripts sorted by dealer.
func (s *Session) Transcripts() []*PVSSTranscript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *Session) sortedLocked() []*PVSSTranscript {
	out := make([]*PVSSTranscript, 0, len(s.transcripts))
	for _, t := range s.transcripts {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dealer < out[j].Dealer })
	return out
}

// Aggregate sums the accepted transcripts, which were verified on receipt.
func (s *Session) Aggregate(ctx context.Context) (*AggregatedTranscript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agg != nil {
		return s.agg.clone(), nil
	}
	agg, err := Aggregate(ctx, s.params, s.sortedLocked(), SkipVerify())
	if err != nil {
		return nil, err
	}
	s.agg = agg
	s.retag()
	metrics.Inc("tss_sessions_total", map[string]string{"result": "aggregated"})
	logger.InfoJ("tdkg_session", map[string]any{"op": "aggregate", "session": s.id.String(), "epoch": s.epoch, "dealers": agg.Dealers})
	return agg.clone(), nil
}

// Aggregated returns the aggregate or ErrNotAggregated.
func (s *Session) Aggregated() (*AggregatedTranscript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agg == nil {
		return nil, core.ConfigError(core.ErrNotAggregated, nil)
	}
	return s.agg.clone(), nil
}

// PrivateShare derives validator kp.Index's share for the current epoch.
func (s *Session) PrivateShare(kp *Keypair) (*PrivateShare, error) {
	agg, err := s.Aggregated()
	if err != nil {
		return nil, err
	}
	return agg.PrivateShare(s.params, kp)
}

// Supersede bumps the epoch. Every share issued before is stale afterwards.
func (s *Session) Supersede() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.retag()
	logger.InfoJ("tdkg_session", map[string]any{"op": "supersede", "session": s.id.String(), "epoch": s.epoch})
	return s.epoch
}

// Refresh folds zero-secret transcripts into the aggregate and bumps the epoch.
func (s *Session) Refresh(ctx context.Context, updates []*PVSSTranscript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agg == nil {
		return core.ConfigError(core.ErrNotAggregated, nil)
	}
	next, err := s.agg.Refresh(ctx, s.params, updates)
	if err != nil {
		return err
	}
	s.agg = next
	s.epoch++
	s.retag()
	logger.InfoJ("tdkg_session", map[string]any{"op": "refresh", "session": s.id.String(), "epoch": s.epoch})
	return nil
}

// RecoverPrivateShare rebuilds validator target's share from recovery
// fragments against the current aggregate.
func (s *Session) RecoverPrivateShare(ctx context.Context, target int, fragments []*PrivateShare) (*PrivateShare, error) {
	agg, err := s.Aggregated()
	if err != nil {
		return nil, err
	}
	return RecoverPrivateShare(ctx, s.params, agg, target, fragments)
}

// ExportKeyShare packages kp and its current private share for a KeyStore.
func (s *Session) ExportKeyShare(kp *Keypair) (KeyShare, error) {
	ps, err := s.PrivateShare(kp)
	if err != nil {
		return KeyShare{}, err
	}
	defer ps.Wipe()
	agg, err := s.Aggregated()
	if err != nil {
		return KeyShare{}, err
	}
	pk, err := agg.PublicKey().MarshalBinary()
	if err != nil {
		return KeyShare{}, err
	}
	z, err := ps.Value.MarshalBinary()
	if err != nil {
		return KeyShare{}, err
	}
	return KeyShare{
		Index:         kp.Index,
		SessionID:     s.id.String(),
		Epoch:         s.Epoch(),
		SessionTag:    ps.SessionTag,
		PublicKey:     pk,
		DecryptionKey: kp.MarshalSecret(),
		PrivateShare:  z,
	}, nil
}

// Snapshot writes the session's public state to store.
func (s *Session) Snapshot(store *SessionStore) error {
	s.mu.Lock()
	st := sessionState{ID: s.id.String(), Epoch: s.epoch, Threshold: s.params.Threshold, N: s.params.N()}
	var err error
	for _, t := range s.sortedLocked() {
		var b []byte
		if b, err = EncodeTranscript(t); err != nil {
			break
		}
		st.Transcripts = append(st.Transcripts, b)
	}
	if err == nil && s.agg != nil {
		st.Aggregate, err = EncodeAggregate(s.agg)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return store.Save(st.ID, st)
}

// RestoreSession reloads a snapshot for params. Transcripts are re-verified.
func RestoreSession(ctx context.Context, store *SessionStore, params *Params, id uuid.UUID) (*Session, error) {
	st, err := store.Load(id.String())
	if err != nil {
		return nil, err
	}
	if st.Threshold != params.Threshold || st.N != params.N() {
		return nil, core.ConfigError(core.ErrInvalidValidatorSet, fmt.Errorf("snapshot is for t=%d n=%d", st.Threshold, st.N))
	}
	s, err := NewSessionWithID(params, id, st.Epoch)
	if err != nil {
		return nil, err
	}
	for _, b := range st.Transcripts {
		t, err := DecodeTranscript(params.Suite, b)
		if err != nil {
			return nil, err
		}
		if err := s.Receive(ctx, t); err != nil {
			return nil, err
		}
	}
	if st.Aggregate != nil {
		agg, err := DecodeAggregate(params.Suite, st.Aggregate)
		if err != nil {
			return nil, err
		}
		if err := checkAggregateShape(params, agg); err != nil {
			return nil, err
		}
		if err := verifyAggregateSigma(params, agg); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.agg = agg
		s.retag()
		s.mu.Unlock()
	}
	metrics.Inc("tss_sessions_total", map[string]string{"result": "restored"})
	return s, nil
}
