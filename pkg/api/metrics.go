package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssargent/dsusage/pkg/codec"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the API
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// Wire codec metrics
	codecOperationsTotal *prometheus.CounterVec
	codecBytes           *prometheus.HistogramVec

	// Usage report metrics
	reportsTotal   *prometheus.CounterVec
	reportDuration prometheus.Histogram
	usageCounts    *prometheus.GaugeVec

	// API key authentication metrics
	authRequestsTotal *prometheus.CounterVec

	// Health check metrics
	healthChecksTotal *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil registry
// gets a fresh one.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dsusage_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dsusage_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dsusage_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		codecOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dsusage_codec_operations_total",
				Help: "Total number of usage encode and decode operations",
			},
			[]string{"operation", "transport_version", "status"},
		),

		codecBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dsusage_codec_bytes",
				Help:    "Size of encoded usage reports in bytes",
				Buckets: prometheus.LinearBuckets(8, 8, 8),
			},
			[]string{"operation"},
		),

		reportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dsusage_reports_total",
				Help: "Total number of usage collections",
			},
			[]string{"status"},
		),

		reportDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dsusage_report_duration_seconds",
				Help:    "Usage collection duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		usageCounts: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dsusage_usage_count",
				Help: "Latest data stream usage counters",
			},
			[]string{"counter"},
		),

		authRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dsusage_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),

		healthChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dsusage_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"status"},
		),
	}

	return m
}

// Handler serves the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the registry the metrics live in
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func statusLabel(success bool) string {
	if success {
		return statusSuccess
	}
	return statusError
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordCodecOperation records an encode or decode at a transport version
func (m *Metrics) RecordCodecOperation(operation, version string, success bool, size int) {
	m.codecOperationsTotal.WithLabelValues(operation, version, statusLabel(success)).Inc()
	if success {
		m.codecBytes.WithLabelValues(operation).Observe(float64(size))
	}
}

// RecordReport records one usage collection
func (m *Metrics) RecordReport(success bool, duration time.Duration) {
	m.reportsTotal.WithLabelValues(statusLabel(success)).Inc()
	m.reportDuration.Observe(duration.Seconds())
}

// RecordUsage publishes the latest usage counters as gauges
func (m *Metrics) RecordUsage(stats codec.DataStreamStats) {
	m.usageCounts.WithLabelValues(codec.KeyDataStreams).Set(float64(stats.TotalDataStreamCount))
	m.usageCounts.WithLabelValues(codec.KeyIndicesCount).Set(float64(stats.IndicesBehindDataStream))
	m.usageCounts.WithLabelValues(codec.KeyExplicitlyEnabledCount).Set(float64(stats.FailureStoreExplicitlyEnabledCount))
	m.usageCounts.WithLabelValues(codec.KeyEffectivelyEnabledCount).Set(float64(stats.FailureStoreEffectivelyEnabledCount))
	m.usageCounts.WithLabelValues(codec.KeyFailureIndicesCount).Set(float64(stats.FailureStoreIndicesCount))
}

// RecordAuthRequest records an authentication request
func (m *Metrics) RecordAuthRequest(success bool) {
	m.authRequestsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordHealthCheck records a health check
func (m *Metrics) RecordHealthCheck(success bool) {
	m.healthChecksTotal.WithLabelValues(statusLabel(success)).Inc()
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		rw := wrapResponseWriter(w)
		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// InstrumentAuthMiddleware instruments the authentication middleware
func (m *Metrics) InstrumentAuthMiddleware(next func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasAPIKey := r.Header.Get(headerAPIKey) != ""

			rw := wrapResponseWriter(w)
			next(h).ServeHTTP(rw, r)

			if hasAPIKey {
				m.RecordAuthRequest(rw.statusCode != http.StatusUnauthorized)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
