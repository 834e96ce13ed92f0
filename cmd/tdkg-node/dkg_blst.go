//go:build blst

package main

import (
    "context"
    "crypto/rand"
    "encoding/hex"
    "time"

    "github.com/zmlAEQ/aequa-tdkg/internal/tss/core/bls381"
    "github.com/zmlAEQ/aequa-tdkg/internal/tss/dkg"
    "github.com/zmlAEQ/aequa-tdkg/pkg/logger"
    "github.com/zmlAEQ/aequa-tdkg/pkg/metrics"
)

func runDKG(ctx context.Context, confPath, keyPath, exchange string, poll, grace time.Duration) error {
    cfg, err := dkg.LoadSessionConfig(confPath)
    if err != nil {
        metrics.Inc("tdkg_node_total", map[string]string{"result": "config_error"})
        return err
    }
    suite, err := bls381.New()
    if err != nil {
        return err
    }
    kp, err := cfg.LoadKeypair(suite, keyPath)
    if err != nil {
        metrics.Inc("tdkg_node_total", map[string]string{"result": "config_error"})
        return err
    }
    defer kp.Wipe()
    sess, err := cfg.OpenSession(ctx, suite)
    if err != nil {
        return err
    }
    opts := []dkg.RunnerOpt{
        dkg.WithPollInterval(poll),
        dkg.WithGrace(grace),
        dkg.WithKeyStore(dkg.NewKeyStoreFromEnv(cfg.KeyShareFile())),
    }
    if cfg.SessionDir != "" {
        opts = append(opts, dkg.WithSnapshots(dkg.NewSessionStore(cfg.SessionDir)))
    }
    r, err := dkg.NewRunner(sess, kp, dkg.NewDirExchange(exchange), rand.Reader, opts...)
    if err != nil {
        return err
    }
    agg, err := r.Run(ctx)
    if err != nil {
        metrics.Inc("tdkg_node_total", map[string]string{"result": "error"})
        return err
    }
    pk, _ := agg.PublicKey().MarshalBinary()
    metrics.Inc("tdkg_node_total", map[string]string{"result": "ok"})
    logger.InfoJ("tdkg_node", map[string]any{
        "result":     "ready",
        "session":    sess.ID().String(),
        "index":      cfg.Index,
        "epoch":      sess.Epoch(),
        "dealers":    agg.Dealers,
        "public_key": hex.EncodeToString(pk),
    })
    return nil
}
