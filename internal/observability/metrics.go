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
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the console.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// List metrics
	ListFetchesTotal        *prometheus.CounterVec
	ListFetchDuration       *prometheus.HistogramVec
	StaleListResponsesTotal *prometheus.CounterVec

	// Form and action metrics
	FormSubmissionsTotal *prometheus.CounterVec
	ActionsTotal         *prometheus.CounterVec

	// Gateway metrics
	GatewayRequestsTotal       *prometheus.CounterVec
	GatewayRequestDuration     *prometheus.HistogramVec
	GatewayCircuitBreakerState prometheus.Gauge
	GatewayRetriesTotal        *prometheus.CounterVec

	// Cache metrics
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter
	LookupCacheHitsTotal       *prometheus.CounterVec
	LookupCacheMissesTotal     *prometheus.CounterVec

	// System metrics
	SessionsActive           prometheus.Gauge
	OpenAPIOperationsIndexed prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Lists
		ListFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_list_fetches_total",
			Help: "Total number of list page fetches by outcome.",
		}, []string{"resource", "outcome"}),
		ListFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_list_fetch_duration_seconds",
			Help:    "List page fetch duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"resource"}),
		StaleListResponsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_list_stale_responses_total",
			Help: "Total number of list responses dropped because a newer fetch was issued.",
		}, []string{"resource"}),

		// Forms and actions
		FormSubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_form_submissions_total",
			Help: "Total number of form submissions.",
		}, []string{"resource", "mode", "outcome"}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_confirmed_actions_total",
			Help: "Total number of confirmed actions.",
		}, []string{"resource", "kind", "outcome"}),

		// Gateway
		GatewayRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_gateway_requests_total",
			Help: "Total number of platform gateway requests.",
		}, []string{"operation", "status"}),
		GatewayRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_gateway_request_duration_seconds",
			Help:    "Platform gateway request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"operation"}),
		GatewayCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "console_gateway_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}),
		GatewayRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_gateway_retries_total",
			Help: "Total number of platform gateway request retries.",
		}, []string{"operation"}),

		// Cache
		CapabilityCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "console_capability_cache_hits_total",
			Help: "Total capability cache hits.",
		}),
		CapabilityCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "console_capability_cache_misses_total",
			Help: "Total capability cache misses.",
		}),
		LookupCacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_lookup_cache_hits_total",
			Help: "Total lookup cache hits.",
		}, []string{"lookup"}),
		LookupCacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_lookup_cache_misses_total",
			Help: "Total lookup cache misses.",
		}, []string{"lookup"}),

		// System
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "console_sessions_active",
			Help: "Number of console sessions held in memory.",
		}),
		OpenAPIOperationsIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "console_openapi_operations_indexed",
			Help: "Number of indexed gateway operations.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Lists
		m.ListFetchesTotal,
		m.ListFetchDuration,
		m.StaleListResponsesTotal,
		// Forms and actions
		m.FormSubmissionsTotal,
		m.ActionsTotal,
		// Gateway
		m.GatewayRequestsTotal,
		m.GatewayRequestDuration,
		m.GatewayCircuitBreakerState,
		m.GatewayRetriesTotal,
		// Cache
		m.CapabilityCacheHitsTotal,
		m.CapabilityCacheMissesTotal,
		m.LookupCacheHitsTotal,
		m.LookupCacheMissesTotal,
		// System
		m.SessionsActive,
		m.OpenAPIOperationsIndexed,
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

// ObserveListFetch records a completed list fetch. Stale responses are
// counted separately and carry no duration.
func (m *Metrics) ObserveListFetch(resource, outcome string, duration time.Duration) {
	m.ListFetchesTotal.WithLabelValues(resource, outcome).Inc()
	if outcome == "stale" {
		m.StaleListResponsesTotal.WithLabelValues(resource).Inc()
		return
	}
	m.ListFetchDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// ObserveFormSubmit records a dispatched form submission.
func (m *Metrics) ObserveFormSubmit(resource, mode, outcome string) {
	m.FormSubmissionsTotal.WithLabelValues(resource, mode, outcome).Inc()
}

// ObserveAction records a confirmed action.
func (m *Metrics) ObserveAction(resource, kind, outcome string) {
	m.ActionsTotal.WithLabelValues(resource, kind, outcome).Inc()
}

// ObserveGatewayRequest records a platform gateway request.
func (m *Metrics) ObserveGatewayRequest(operation string, status int, duration time.Duration) {
	m.GatewayRequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	m.GatewayRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveGatewayRetry records a gateway request retry.
func (m *Metrics) ObserveGatewayRetry(operation string) {
	m.GatewayRetriesTotal.WithLabelValues(operation).Inc()
}

// ObserveBreakerState sets the gateway circuit breaker state.
// State: 0=closed, 1=open, 2=half-open.
func (m *Metrics) ObserveBreakerState(state float64) {
	m.GatewayCircuitBreakerState.Set(state)
}

// RecordCapabilityCacheHit records a capability cache hit.
func (m *Metrics) RecordCapabilityCacheHit() {
	m.CapabilityCacheHitsTotal.Inc()
}

// RecordCapabilityCacheMiss records a capability cache miss.
func (m *Metrics) RecordCapabilityCacheMiss() {
	m.CapabilityCacheMissesTotal.Inc()
}

// RecordLookupCacheHit records a lookup cache hit.
func (m *Metrics) RecordLookupCacheHit(lookup string) {
	m.LookupCacheHitsTotal.WithLabelValues(lookup).Inc()
}

// RecordLookupCacheMiss records a lookup cache miss.
func (m *Metrics) RecordLookupCacheMiss(lookup string) {
	m.LookupCacheMissesTotal.WithLabelValues(lookup).Inc()
}

// SetSessionsActive sets the number of live console sessions.
func (m *Metrics) SetSessionsActive(count float64) {
	m.SessionsActive.Set(count)
}

// SetOpenAPIOperationsIndexed sets the number of indexed gateway operations.
func (m *Metrics) SetOpenAPIOperationsIndexed(count float64) {
	m.OpenAPIOperationsIndexed.Set(count)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

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

// statusRecorder captures the status and size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
