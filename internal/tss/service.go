package tss

import (
    "context"
    "errors"
    "net"
    "net/http"
    "strconv"
    "time"

    "github.com/zmlAEQ/aequa-tdkg/pkg/logger"
    "github.com/zmlAEQ/aequa-tdkg/pkg/metrics"
)

// Service serves /health, /metrics and an optional node handler under /tdkg/.
type Service struct {
    addr string
    h    http.Handler
    srv  *http.Server
    ln   net.Listener
}

func New(addr string, h http.Handler) *Service { return &Service{addr: addr, h: h} }

func (s *Service) Name() string { return "tdkg" }

// Addr 返回实际监听地址（Start 之后有效）。
func (s *Service) Addr() string {
    if s.ln == nil { return s.addr }
    return s.ln.Addr().String()
}

func (s *Service) Start(ctx context.Context) error {
    begin := time.Now()
    ln, err := net.Listen("tcp", s.addr)
    if err != nil {
        logger.ErrorJ("service_op", map[string]any{"service": s.Name(), "op": "start", "result": "error", "err": err.Error()})
        return err
    }
    s.ln = ln
    s.srv = &http.Server{Handler: newMux(s.h), ReadHeaderTimeout: 5 * time.Second}
    go func() {
        if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
            logger.ErrorJ("service_op", map[string]any{"service": s.Name(), "op": "serve", "err": err.Error()})
        }
    }()
    dur := time.Since(begin).Milliseconds()
    logger.InfoJ("service_op", map[string]any{"service": s.Name(), "op": "start", "result": "ok", "addr": s.Addr(), "latency_ms": dur})
    metrics.ObserveSummary("service_op_ms", map[string]string{"service": s.Name(), "op": "start"}, float64(dur))
    return nil
}

func (s *Service) Stop(ctx context.Context) error {
    begin := time.Now()
    var err error
    if s.srv != nil { err = s.srv.Shutdown(ctx) }
    dur := time.Since(begin).Milliseconds()
    logger.InfoJ("service_op", map[string]any{"service": s.Name(), "op": "stop", "result": "ok", "latency_ms": dur})
    metrics.ObserveSummary("service_op_ms", map[string]string{"service": s.Name(), "op": "stop"}, float64(dur))
    return err
}

func newMux(h http.Handler) *http.ServeMux {
    mux := http.NewServeMux()
    mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) })
    mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "text/plain; version=0.0.4")
        _, _ = w.Write([]byte(metrics.DumpProm()))
    })
    if h != nil {
        mux.Handle("/tdkg/", wrapMetrics(h))
    }
    return mux
}

func wrapMetrics(h http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rr := &respRec{ResponseWriter: w, code: 200}
        h.ServeHTTP(rr, r)
        metrics.Inc("tdkg_http_requests_total", map[string]string{"code": strconv.Itoa(rr.code)})
        metrics.ObserveSummary("tdkg_http_latency_ms", nil, float64(time.Since(start).Milliseconds()))
        logger.InfoJ("tdkg_http", map[string]any{"path": r.URL.Path, "code": rr.code, "latency_ms": time.Since(start).Milliseconds()})
    })
}

type respRec struct{ http.ResponseWriter; code int }
func (r *respRec) WriteHeader(c int) { r.code = c; r.ResponseWriter.WriteHeader(c) }
