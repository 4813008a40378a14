package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	engineDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets       = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the engine.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Engine metrics
	InstanceCreationsTotal    *prometheus.CounterVec
	TransitionsTotal          *prometheus.CounterVec
	TransitionDuration        *prometheus.HistogramVec
	ConcurrencyConflictsTotal *prometheus.CounterVec
	CASRetriesTotal           *prometheus.CounterVec
	ActiveInstances           *prometheus.GaugeVec
	InstanceCompletionsTotal  *prometheus.CounterVec

	// Task query metrics
	TaskQueryDuration    prometheus.Histogram
	TaskCacheHitsTotal   prometheus.Counter
	TaskCacheMissesTotal prometheus.Counter

	// Access metrics
	AccessCacheHitsTotal   prometheus.Counter
	AccessCacheMissesTotal prometheus.Counter

	// System metrics
	DefinitionsLoaded prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowd_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowd_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowd_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Engine
		InstanceCreationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowd_instance_creations_total",
			Help: "Total number of workflow instances created.",
		}, []string{"workflow_id"}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowd_transitions_total",
			Help: "Total number of transition executions by result.",
		}, []string{"workflow_id", "result"}),
		TransitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowd_transition_duration_seconds",
			Help:    "Transition execution duration in seconds.",
			Buckets: engineDurationBuckets,
		}, []string{"workflow_id"}),
		ConcurrencyConflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowd_concurrency_conflicts_total",
			Help: "Total number of optimistic lock conflicts surfaced to callers.",
		}, []string{"workflow_id"}),
		CASRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowd_cas_retries_total",
			Help: "Total number of internal execute retries after a lost write race.",
		}, []string{"workflow_id"}),
		ActiveInstances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flowd_active_instances",
			Help: "Number of instances not yet in a final state.",
		}, []string{"workflow_id"}),
		InstanceCompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowd_instance_completions_total",
			Help: "Total number of instances that reached a final state.",
		}, []string{"workflow_id", "final_state"}),

		// Tasks
		TaskQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowd_task_query_duration_seconds",
			Help:    "Task query duration in seconds.",
			Buckets: engineDurationBuckets,
		}),
		TaskCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowd_task_cache_hits_total",
			Help: "Total task cache hits.",
		}),
		TaskCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowd_task_cache_misses_total",
			Help: "Total task cache misses.",
		}),

		// Access
		AccessCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowd_access_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		AccessCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowd_access_cache_misses_total",
			Help: "Total capability cache misses.",
		}),

		// System
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowd_definitions_loaded",
			Help: "Number of seeded workflow definitions.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Engine
		m.InstanceCreationsTotal,
		m.TransitionsTotal,
		m.TransitionDuration,
		m.ConcurrencyConflictsTotal,
		m.CASRetriesTotal,
		m.ActiveInstances,
		m.InstanceCompletionsTotal,
		// Tasks
		m.TaskQueryDuration,
		m.TaskCacheHitsTotal,
		m.TaskCacheMissesTotal,
		// Access
		m.AccessCacheHitsTotal,
		m.AccessCacheMissesTotal,
		// System
		m.DefinitionsLoaded,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordInstanceCreation records a new instance.
func (m *Metrics) RecordInstanceCreation(workflowID string) {
	m.InstanceCreationsTotal.WithLabelValues(workflowID).Inc()
	m.ActiveInstances.WithLabelValues(workflowID).Inc()
}

// RecordTransition records a transition execution and its outcome. Result is
// "ok" or the error code that stopped the execution.
func (m *Metrics) RecordTransition(workflowID, result string, duration time.Duration) {
	m.TransitionsTotal.WithLabelValues(workflowID, result).Inc()
	m.TransitionDuration.WithLabelValues(workflowID).Observe(duration.Seconds())
}

// RecordConcurrencyConflict records a conflict surfaced to the caller.
func (m *Metrics) RecordConcurrencyConflict(workflowID string) {
	m.ConcurrencyConflictsTotal.WithLabelValues(workflowID).Inc()
}

// RecordCASRetry records one internal retry after a lost write race.
func (m *Metrics) RecordCASRetry(workflowID string) {
	m.CASRetriesTotal.WithLabelValues(workflowID).Inc()
}

// RecordInstanceCompletion records an instance reaching a final state.
func (m *Metrics) RecordInstanceCompletion(workflowID, finalState string) {
	m.InstanceCompletionsTotal.WithLabelValues(workflowID, finalState).Inc()
	m.ActiveInstances.WithLabelValues(workflowID).Dec()
}

// RecordTaskQuery records a task query execution.
func (m *Metrics) RecordTaskQuery(duration time.Duration) {
	m.TaskQueryDuration.Observe(duration.Seconds())
}

// RecordTaskCacheHit records a task cache hit.
func (m *Metrics) RecordTaskCacheHit() {
	m.TaskCacheHitsTotal.Inc()
}

// RecordTaskCacheMiss records a task cache miss.
func (m *Metrics) RecordTaskCacheMiss() {
	m.TaskCacheMissesTotal.Inc()
}

// RecordAccessCacheHit records a capability cache hit.
func (m *Metrics) RecordAccessCacheHit() {
	m.AccessCacheHitsTotal.Inc()
}

// RecordAccessCacheMiss records a capability cache miss.
func (m *Metrics) RecordAccessCacheMiss() {
	m.AccessCacheMissesTotal.Inc()
}

// SetDefinitionsLoaded sets the number of seeded definitions.
func (m *Metrics) SetDefinitionsLoaded(count float64) {
	m.DefinitionsLoaded.Set(count)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
