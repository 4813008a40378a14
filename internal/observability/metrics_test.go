package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics() *Metrics {
	return InitMetrics(prometheus.NewRegistry())
}

func TestRecordTransition(t *testing.T) {
	m := newTestMetrics()

	m.RecordTransition("wf-1", "ok", 50*time.Millisecond)
	m.RecordTransition("wf-1", "ok", 10*time.Millisecond)
	m.RecordTransition("wf-1", "CONCURRENCY_CONFLICT", time.Millisecond)

	if got := testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("wf-1", "ok")); got != 2 {
		t.Errorf("ok transitions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("wf-1", "CONCURRENCY_CONFLICT")); got != 1 {
		t.Errorf("conflict transitions = %v, want 1", got)
	}
}

func TestInstanceLifecycleGauges(t *testing.T) {
	m := newTestMetrics()

	m.RecordInstanceCreation("wf-1")
	m.RecordInstanceCreation("wf-1")
	if got := testutil.ToFloat64(m.ActiveInstances.WithLabelValues("wf-1")); got != 2 {
		t.Errorf("active instances = %v, want 2", got)
	}

	m.RecordInstanceCompletion("wf-1", "approved")
	if got := testutil.ToFloat64(m.ActiveInstances.WithLabelValues("wf-1")); got != 1 {
		t.Errorf("active instances after completion = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.InstanceCompletionsTotal.WithLabelValues("wf-1", "approved")); got != 1 {
		t.Errorf("completions = %v, want 1", got)
	}
}

func TestCacheCounters(t *testing.T) {
	m := newTestMetrics()

	m.RecordTaskCacheHit()
	m.RecordTaskCacheMiss()
	m.RecordTaskCacheMiss()
	m.RecordAccessCacheHit()

	if got := testutil.ToFloat64(m.TaskCacheHitsTotal); got != 1 {
		t.Errorf("task cache hits = %v", got)
	}
	if got := testutil.ToFloat64(m.TaskCacheMissesTotal); got != 2 {
		t.Errorf("task cache misses = %v", got)
	}
	if got := testutil.ToFloat64(m.AccessCacheHitsTotal); got != 1 {
		t.Errorf("access cache hits = %v", got)
	}
}

func TestMetricsMiddleware_usesRoutePattern(t *testing.T) {
	m := newTestMetrics()

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/workflows/{workflowID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodGet, "/workflows/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	// All three requests share one label set.
	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/workflows/{workflowID}", "200"))
	if got != 3 {
		t.Errorf("requests under pattern label = %v, want 3", got)
	}
}

func TestMetricsMiddleware_capturesStatus(t *testing.T) {
	m := newTestMetrics()

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/boom", "409"))
	if got != 1 {
		t.Errorf("409 count = %v, want 1", got)
	}
}
