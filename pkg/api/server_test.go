package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "github_rate_limits_test", Help: "test gauge"})
	g.Set(42)
	reg.MustRegister(g)
	return reg
}

func TestSecureHeaders(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	secureHandler := withSecureHeaders(handler)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	secureHandler.ServeHTTP(w, req)

	expectedHeaders := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	for key, expected := range expectedHeaders {
		if got := w.Header().Get(key); got != expected {
			t.Errorf("Header %s: expected %q, got %q", key, expected, got)
		}
	}
}

func TestServer_Routes(t *testing.T) {
	s := NewServer("127.0.0.1", 0, newTestRegistry(t), nil)

	tests := []struct {
		name     string
		method   string
		path     string
		status   int
		contains string
	}{
		{name: "metrics", method: "GET", path: "/metrics", status: http.StatusOK, contains: "github_rate_limits_test 42"},
		{name: "root serves metrics", method: "GET", path: "/", status: http.StatusOK, contains: "github_rate_limits_test 42"},
		{name: "health", method: "GET", path: "/healthz", status: http.StatusOK, contains: `{"status":"ok"}`},
		{name: "health wrong method", method: "POST", path: "/healthz", status: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			s.server.Handler.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.contains != "" && !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("body does not contain %q:\n%s", tt.contains, w.Body.String())
			}
			if w.Header().Get("X-Trace-ID") == "" {
				t.Error("missing X-Trace-ID header")
			}
		})
	}
}

func TestServer_TraceIDPropagated(t *testing.T) {
	s := NewServer("127.0.0.1", 0, newTestRegistry(t), nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Trace-ID", "abc123")
	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Trace-ID"); got != "abc123" {
		t.Errorf("X-Trace-ID = %q, want abc123", got)
	}
}

func TestWithRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	s := &Server{logger: zap.New(core)}

	handler := s.withRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if logs.FilterMessage("panic_recovered").Len() != 1 {
		t.Errorf("expected one panic_recovered log")
	}
}

func TestServer_StartStop(t *testing.T) {
	s := NewServer("127.0.0.1", 0, newTestRegistry(t), nil)
	if err := s.Start(func(err error) { t.Errorf("serve error: %v", err) }); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "github_rate_limits_test 42") {
		t.Errorf("unexpected body:\n%s", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestServer_StartPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	s := NewServer("127.0.0.1", port, newTestRegistry(t), nil)
	if err := s.Start(nil); err == nil {
		t.Error("expected bind error on a used port")
		s.Stop(context.Background())
	}
}
