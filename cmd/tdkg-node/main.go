package main

import (
    "context"
    "flag"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/zmlAEQ/aequa-tdkg/internal/tss"
    "github.com/zmlAEQ/aequa-tdkg/pkg/logger"
)

func main() {
    var (
        confPath string
        keyPath  string
        exchange string
        monAddr  string
        logLevel string
        poll     time.Duration
        grace    time.Duration
    )
    flag.StringVar(&confPath, "conf", "", "Path to node session config (node-<i>.json)")
    flag.StringVar(&keyPath, "key", "", "Path to this validator's hex decryption key")
    flag.StringVar(&exchange, "exchange", "", "Shared directory used to exchange dealer transcripts")
    flag.StringVar(&monAddr, "monitoring", "", "Optional /health and /metrics listen address")
    flag.StringVar(&logLevel, "log-level", "info", "debug|info|warn|error")
    flag.DurationVar(&poll, "poll", 500*time.Millisecond, "Exchange poll interval")
    flag.DurationVar(&grace, "grace", 5*time.Second, "Wait for remaining dealers after T+1 transcripts")
    flag.Parse()

    if err := logger.Init(logger.Config{Level: logLevel}); err != nil {
        logger.Error(err.Error())
        os.Exit(2)
    }
    defer func() { _ = logger.Sync() }()
    if confPath == "" || keyPath == "" || exchange == "" {
        logger.Error("missing --conf, --key or --exchange")
        os.Exit(2)
    }

    ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer cancel()

    if monAddr != "" {
        mon := tss.New(monAddr, nil)
        if err := mon.Start(ctx); err != nil {
            logger.Error(err.Error())
            os.Exit(1)
        }
        defer func() { _ = mon.Stop(context.Background()) }()
    }

    if err := runDKG(ctx, confPath, keyPath, exchange, poll, grace); err != nil {
        logger.ErrorJ("tdkg_node", map[string]any{"result": "error", "err": err.Error()})
        os.Exit(1)
    }
}
