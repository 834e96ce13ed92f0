package tss

import (
    "context"
    "io"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"

    "github.com/zmlAEQ/aequa-tdkg/pkg/metrics"
)

func TestMux_HealthMetricsAndHandler(t *testing.T) {
    h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
    srv := httptest.NewServer(newMux(h))
    defer srv.Close()

    resp, err := http.Get(srv.URL + "/health")
    if err != nil || resp.StatusCode != http.StatusOK { t.Fatalf("health: %v", err) }
    resp.Body.Close()

    resp, err = http.Get(srv.URL + "/tdkg/share")
    if err != nil { t.Fatalf("handler: %v", err) }
    resp.Body.Close()
    if resp.StatusCode != http.StatusNoContent { t.Fatalf("want 204 got %d", resp.StatusCode) }

    resp, err = http.Get(srv.URL + "/metrics")
    if err != nil { t.Fatalf("metrics: %v", err) }
    b, _ := io.ReadAll(resp.Body)
    resp.Body.Close()
    if !strings.Contains(string(b), `tdkg_http_requests_total{code="204"}`) {
        t.Fatalf("missing request metric: %s", b)
    }
    if !strings.Contains(metrics.DumpProm(), "tdkg_http_latency_ms") {
        t.Fatalf("missing latency metric")
    }
}

func TestMux_NoHandler(t *testing.T) {
    srv := httptest.NewServer(newMux(nil))
    defer srv.Close()
    resp, err := http.Get(srv.URL + "/tdkg/share")
    if err != nil { t.Fatalf("get: %v", err) }
    resp.Body.Close()
    if resp.StatusCode != http.StatusNotFound { t.Fatalf("want 404 got %d", resp.StatusCode) }
}

func TestService_StartStop(t *testing.T) {
    s := New("127.0.0.1:0", nil)
    if err := s.Start(context.Background()); err != nil { t.Fatalf("start: %v", err) }
    resp, err := http.Get("http://" + s.Addr() + "/health")
    if err != nil { t.Fatalf("health: %v", err) }
    resp.Body.Close()
    if err := s.Stop(context.Background()); err != nil { t.Fatalf("stop: %v", err) }
}
