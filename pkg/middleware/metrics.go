package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "typlive").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request and compile duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "typlive",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// metrics holds the Prometheus metrics for the preview server.
type metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	activeSessions     prometheus.Gauge
	refreshesSent      prometheus.Counter
	sendErrors         *prometheus.CounterVec
	compilesTotal      *prometheus.CounterVec
	compileDuration    prometheus.Histogram
	artifactReadErrors prometheus.Counter
}

// globalMetrics is the singleton metrics instance, created by the first
// call to Init or Prometheus. Record functions are no-ops until then.
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_requests_total",
			Help:        "Total HTTP requests by route, method and status",
			ConstLabels: config.ConstLabels,
		}, []string{"route", "method", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"route", "method"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of connected notification sessions",
			ConstLabels: config.ConstLabels,
		}),

		refreshesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "refreshes_sent_total",
			Help:        "Total refresh messages delivered to clients",
			ConstLabels: config.ConstLabels,
		}),

		sendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "send_errors_total",
			Help:        "Total failed refresh sends by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		compilesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "compiles_total",
			Help:        "Total document compilations by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		compileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "compile_duration_seconds",
			Help:        "Document compilation duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		artifactReadErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "artifact_read_errors_total",
			Help:        "Total failed reads of the compiled artifact",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Init registers the metrics with the configured registry. Later calls
// (and later calls to Prometheus) reuse the first registration.
func Init(opts ...MetricsOption) {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	globalMetricsMu.Unlock()
}

func current() *metrics {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	return globalMetrics
}

// Prometheus creates HTTP middleware that counts requests and observes
// their duration. Requests are labelled with the chi route pattern when
// one matched, so path parameters do not explode label cardinality.
//
// Metrics collected:
//   - typlive_http_requests_total: Counter of requests by route, method and status
//   - typlive_http_request_duration_seconds: Histogram of request duration
//
// Session, compile and artifact metrics are recorded through the Record
// functions below.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(middleware.Prometheus())
//	r.Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) func(http.Handler) http.Handler {
	Init(opts...)
	m := current()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := routePattern(r)
			m.requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
			m.requestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

// routePattern returns the matched chi pattern, or the raw path when the
// request did not go through a chi router.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	if r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordSessionOpen records a notification session starting.
func RecordSessionOpen() {
	if m := current(); m != nil {
		m.activeSessions.Inc()
	}
}

// RecordSessionClose records a notification session ending.
func RecordSessionClose() {
	if m := current(); m != nil {
		m.activeSessions.Dec()
	}
}

// RecordRefreshSent records one refresh delivered to a client.
func RecordRefreshSent() {
	if m := current(); m != nil {
		m.refreshesSent.Inc()
	}
}

// RecordSendError records a failed refresh send. kind is "broken_pipe" or
// "fatal".
func RecordSendError(kind string) {
	if m := current(); m != nil {
		m.sendErrors.WithLabelValues(kind).Inc()
	}
}

// RecordCompile records one compiler run.
func RecordCompile(success bool, duration time.Duration) {
	m := current()
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "error"
	}
	m.compilesTotal.WithLabelValues(result).Inc()
	m.compileDuration.Observe(duration.Seconds())
}

// RecordArtifactReadError records a failed read of the artifact file.
func RecordArtifactReadError() {
	if m := current(); m != nil {
		m.artifactReadErrors.Inc()
	}
}

// =============================================================================
// Metrics Collector
// =============================================================================

// Collector exposes the registered metrics for inspection.
type Collector struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	ActiveSessions     prometheus.Gauge
	RefreshesSent      prometheus.Counter
	SendErrors         *prometheus.CounterVec
	CompilesTotal      *prometheus.CounterVec
	CompileDuration    prometheus.Histogram
	ArtifactReadErrors prometheus.Counter
}

// GetMetrics returns the global metrics collector.
// Returns nil if metrics have not been initialized.
func GetMetrics() *Collector {
	m := current()
	if m == nil {
		return nil
	}
	return &Collector{
		RequestsTotal:      m.requestsTotal,
		RequestDuration:    m.requestDuration,
		ActiveSessions:     m.activeSessions,
		RefreshesSent:      m.refreshesSent,
		SendErrors:         m.sendErrors,
		CompilesTotal:      m.compilesTotal,
		CompileDuration:    m.compileDuration,
		ArtifactReadErrors: m.artifactReadErrors,
	}
}

// ResetForTest drops the global metrics so the next Init registers fresh
// ones. Only tests should call it.
func ResetForTest() {
	globalMetricsMu.Lock()
	globalMetrics = nil
	globalMetricsMu.Unlock()
}
