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

// Histogram bucket definitions. Upstream generation calls routinely take
// tens of seconds, so the dispatch buckets reach much further than the HTTP
// serving buckets.
var (
	httpDurationBuckets     = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	dispatchDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
	bodySizeBuckets         = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the gateway.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Dispatch metrics
	DispatchTotal          *prometheus.CounterVec
	DispatchDuration       *prometheus.HistogramVec
	DispatchResponseBytes  *prometheus.HistogramVec
	IdempotencyHitsTotal   *prometheus.CounterVec

	// Workflow metrics
	WorkflowStartsTotal      *prometheus.CounterVec
	WorkflowCompletionsTotal *prometheus.CounterVec
	WorkflowStepsTotal       *prometheus.CounterVec
	WorkflowActiveRuns       prometheus.Gauge
	WorkflowStepDuration     *prometheus.HistogramVec

	// Registry metrics
	ProvidersRegistered *prometheus.GaugeVec
	RegistryMutations   *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genway_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genway_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genway_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genway_dispatch_total",
			Help: "Total number of generation dispatches.",
		}, []string{"provider", "kind", "status"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genway_dispatch_duration_seconds",
			Help:    "Upstream generation call duration in seconds.",
			Buckets: dispatchDurationBuckets,
		}, []string{"provider", "kind"}),
		DispatchResponseBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genway_dispatch_response_bytes",
			Help:    "Upstream response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"provider"}),
		IdempotencyHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genway_idempotency_hits_total",
			Help: "Total number of idempotency cache hits.",
		}, []string{"outcome"}),

		WorkflowStartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genway_workflow_starts_total",
			Help: "Total number of workflow run starts.",
		}, []string{"definition_id"}),
		WorkflowCompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genway_workflow_completions_total",
			Help: "Total number of workflow run completions.",
		}, []string{"definition_id", "final_status"}),
		WorkflowStepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genway_workflow_steps_total",
			Help: "Total number of executed workflow steps.",
		}, []string{"definition_id", "status"}),
		WorkflowActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genway_workflow_active_runs",
			Help: "Number of workflow runs currently executing.",
		}),
		WorkflowStepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genway_workflow_step_duration_seconds",
			Help:    "Workflow step duration in seconds.",
			Buckets: dispatchDurationBuckets,
		}, []string{"definition_id"}),

		ProvidersRegistered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "genway_providers_registered",
			Help: "Number of registered providers by kind and activation state.",
		}, []string{"kind", "active"}),
		RegistryMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genway_registry_mutations_total",
			Help: "Total number of provider registry mutations.",
		}, []string{"operation"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSizeBytes,
		m.DispatchTotal,
		m.DispatchDuration,
		m.DispatchResponseBytes,
		m.IdempotencyHitsTotal,
		m.WorkflowStartsTotal,
		m.WorkflowCompletionsTotal,
		m.WorkflowStepsTotal,
		m.WorkflowActiveRuns,
		m.WorkflowStepDuration,
		m.ProvidersRegistered,
		m.RegistryMutations,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordDispatch records a completed generation dispatch.
func (m *Metrics) RecordDispatch(provider, kind, status string, duration time.Duration, respBytes int) {
	m.DispatchTotal.WithLabelValues(provider, kind, status).Inc()
	m.DispatchDuration.WithLabelValues(provider, kind).Observe(duration.Seconds())
	m.DispatchResponseBytes.WithLabelValues(provider).Observe(float64(respBytes))
}

// RecordIdempotencyHit records an idempotency cache lookup that found an
// entry. Outcome is "replay" or "conflict".
func (m *Metrics) RecordIdempotencyHit(outcome string) {
	m.IdempotencyHitsTotal.WithLabelValues(outcome).Inc()
}

// RecordWorkflowStart records a workflow run start.
func (m *Metrics) RecordWorkflowStart(definitionID string) {
	m.WorkflowStartsTotal.WithLabelValues(definitionID).Inc()
	m.WorkflowActiveRuns.Inc()
}

// RecordWorkflowCompletion records a workflow run reaching a terminal status.
func (m *Metrics) RecordWorkflowCompletion(definitionID, finalStatus string) {
	m.WorkflowCompletionsTotal.WithLabelValues(definitionID, finalStatus).Inc()
	m.WorkflowActiveRuns.Dec()
}

// RecordWorkflowStep records one executed step.
func (m *Metrics) RecordWorkflowStep(definitionID, status string, duration time.Duration) {
	m.WorkflowStepsTotal.WithLabelValues(definitionID, status).Inc()
	m.WorkflowStepDuration.WithLabelValues(definitionID).Observe(duration.Seconds())
}

// SetProvidersRegistered sets the provider gauge for a (kind, active) pair.
func (m *Metrics) SetProvidersRegistered(kind string, active bool, count float64) {
	m.ProvidersRegistered.WithLabelValues(kind, strconv.FormatBool(active)).Set(count)
}

// RecordRegistryMutation records an upsert, delete, or seed.
func (m *Metrics) RecordRegistryMutation(operation string) {
	m.RegistryMutations.WithLabelValues(operation).Inc()
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

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start), sw.bytes)
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
