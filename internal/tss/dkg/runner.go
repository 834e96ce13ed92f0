package dkg

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/zmlAEQ/aequa-tdkg/internal/tss/core"
	"github.com/zmlAEQ/aequa-tdkg/pkg/logger"
	"github.com/zmlAEQ/aequa-tdkg/pkg/metrics"
)

// Runner drives one node through a session: deal, publish, collect and verify
// peer transcripts, aggregate, then persist the key share.
type Runner struct {
	sess  *Session
	kp    *Keypair
	ex    Exchange
	rand  io.Reader
	keys  *KeyStore
	snaps *SessionStore

	pollInterval time.Duration
	grace        time.Duration
}

type RunnerOpt func(*Runner)

// WithPollInterval sets how often the exchange is polled.
func WithPollInterval(d time.Duration) RunnerOpt {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithGrace sets how long to keep waiting for the remaining dealers once T+1
// transcripts are in. Zero aggregates as soon as the session is ready.
// Aggregation on grace expiry uses whatever dealers this node has seen; nodes
// that saw different sets end up with different group keys unless the
// Exchange delivers the same transcripts to everyone in time.
func WithGrace(d time.Duration) RunnerOpt {
	return func(r *Runner) {
		if d >= 0 {
			r.grace = d
		}
	}
}

// WithKeyStore persists the exported key share after aggregation.
func WithKeyStore(ks *KeyStore) RunnerOpt { return func(r *Runner) { r.keys = ks } }

// WithSnapshots snapshots the session after each state change.
func WithSnapshots(st *SessionStore) RunnerOpt { return func(r *Runner) { r.snaps = st } }

func NewRunner(sess *Session, kp *Keypair, ex Exchange, rand io.Reader, opts ...RunnerOpt) (*Runner, error) {
	if sess == nil || kp == nil || ex == nil {
		return nil, errors.New("runner: nil session, keypair or exchange")
	}
	if !sess.Params().isMember(kp.Index) {
		return nil, core.ConfigError(core.ErrInvalidValidatorSet, nil)
	}
	r := &Runner{sess: sess, kp: kp, ex: ex, rand: rand, pollInterval: 500 * time.Millisecond, grace: 5 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Run blocks until the session is aggregated or ctx ends.
func (r *Runner) Run(ctx context.Context) (*AggregatedTranscript, error) {
	if agg, err := r.sess.Aggregated(); err == nil {
		logger.InfoJ("tdkg_runner", map[string]any{"result": "skip", "reason": "already_aggregated"})
		return agg, r.persist(ctx)
	}
	own, err := r.ownTranscript(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.ex.Publish(ctx, own); err != nil {
		return nil, err
	}
	r.snapshot()

	n := r.sess.Params().N()
	rejected := map[int]bool{}
	var readyAt time.Time
	t := time.NewTicker(r.pollInterval)
	defer t.Stop()
	for {
		fresh := r.collect(ctx, rejected)
		if fresh > 0 {
			r.snapshot()
		}
		have := len(r.sess.Transcripts())
		if r.sess.Ready() && readyAt.IsZero() {
			readyAt = time.Now()
		}
		if have+len(rejected) >= n || (!readyAt.IsZero() && time.Since(readyAt) >= r.grace) {
			if r.sess.Ready() {
				break
			}
		}
		select {
		case <-ctx.Done():
			metrics.Inc("tdkg_runner_total", map[string]string{"result": "cancelled"})
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	agg, err := r.sess.Aggregate(ctx)
	if err != nil {
		metrics.Inc("tdkg_runner_total", map[string]string{"result": "error"})
		return nil, err
	}
	r.snapshot()
	if err := r.persist(ctx); err != nil {
		return nil, err
	}
	metrics.Inc("tdkg_runner_total", map[string]string{"result": "ok"})
	logger.InfoJ("tdkg_runner", map[string]any{"result": "ok", "index": r.kp.Index, "dealers": agg.Dealers, "rejected": len(rejected)})
	return agg, nil
}

func (r *Runner) ownTranscript(ctx context.Context) (*PVSSTranscript, error) {
	for _, t := range r.sess.Transcripts() {
		if t.Dealer == r.kp.Index {
			return t, nil
		}
	}
	return r.sess.Deal(ctx, r.kp.Index, r.rand)
}

// collect feeds unseen transcripts into the session and returns how many were accepted.
func (r *Runner) collect(ctx context.Context, rejected map[int]bool) int {
	ts, err := r.ex.Fetch(ctx, r.sess.Params().Suite)
	if err != nil {
		logger.WarnJ("tdkg_runner", map[string]any{"event": "fetch", "err": err.Error()})
		return 0
	}
	have := map[int]bool{}
	for _, t := range r.sess.Transcripts() {
		have[t.Dealer] = true
	}
	accepted := 0
	for _, t := range ts {
		if have[t.Dealer] || rejected[t.Dealer] {
			continue
		}
		if err := r.sess.Receive(ctx, t); err != nil {
			rejected[t.Dealer] = true
			metrics.Inc("tdkg_runner_rejects_total", nil)
			logger.WarnJ("tdkg_runner", map[string]any{"event": "reject", "dealer": t.Dealer, "err": err.Error(), "failed": FailedValidators(err)})
			continue
		}
		have[t.Dealer] = true
		accepted++
	}
	return accepted
}

func (r *Runner) snapshot() {
	if r.snaps == nil {
		return
	}
	if err := r.sess.Snapshot(r.snaps); err != nil {
		logger.WarnJ("tdkg_runner", map[string]any{"event": "snapshot", "err": err.Error()})
	}
}

func (r *Runner) persist(ctx context.Context) error {
	if r.keys == nil {
		return nil
	}
	ks, err := r.sess.ExportKeyShare(r.kp)
	if err != nil {
		return err
	}
	defer ks.Wipe()
	return r.keys.SaveKeyShare(ctx, ks)
}
