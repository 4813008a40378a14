package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/formgrid/flowd/internal/config"
)

func TestInitTracing_disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{Enabled: false}, "flowd", "test")
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown: %v", err)
	}
}

func TestInitTracing_unsupportedExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), config.TracingConfig{
		Enabled:  true,
		Exporter: "jaeger-thrift",
	}, "flowd", "test")
	if err == nil || !strings.Contains(err.Error(), "unsupported exporter") {
		t.Errorf("expected unsupported exporter error, got %v", err)
	}
}

func TestNewSampler_clampsRate(t *testing.T) {
	for _, rate := range []float64{-1, 0, 0.5, 1, 2} {
		s := newSampler(config.TracingConfig{SamplingRate: rate})
		if s == nil {
			t.Fatalf("newSampler(%v) = nil", rate)
		}
	}
}

func TestTraceIDFromContext_empty(t *testing.T) {
	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Errorf("TraceIDFromContext on empty context = %q", got)
	}
}

func TestTracingMiddleware_passesThrough(t *testing.T) {
	var called bool
	handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/workflows", nil))

	if !called {
		t.Fatal("wrapped handler not called")
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}
