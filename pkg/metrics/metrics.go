// Package metrics exposes multiparse counters to Prometheus
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for multiparse. It implements
// multipart.Recorder so decoders can report into it directly.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// Decoder metrics
	bytesFedTotal     prometheus.Counter
	partsDecodedTotal *prometheus.CounterVec
	partSizeBytes     prometheus.Histogram
	noiseLinesTotal   prometheus.Counter
	decodeErrorsTotal *prometheus.CounterVec
	bufferedBytes     prometheus.Histogram

	// Store metrics
	storeOperationsTotal   *prometheus.CounterVec
	storeOperationDuration *prometheus.HistogramVec
	storedParts            prometheus.Gauge

	authRequestsTotal *prometheus.CounterVec
	healthChecksTotal *prometheus.CounterVec
}

// New creates the metrics on a private registry so several instances can
// coexist in one process
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	sizeBuckets := prometheus.ExponentialBuckets(64, 4, 10) // 64B .. 16MiB

	return &Metrics{
		registry: registry,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multiparse_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "multiparse_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "multiparse_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		bytesFedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "multiparse_decoder_bytes_fed_total",
				Help: "Total number of bytes fed to decoders",
			},
		),

		partsDecodedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multiparse_decoder_parts_total",
				Help: "Total number of parts emitted by decoders",
			},
			[]string{"content_type"},
		),

		partSizeBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "multiparse_decoder_part_size_bytes",
				Help:    "Body size of emitted parts",
				Buckets: sizeBuckets,
			},
		),

		noiseLinesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "multiparse_decoder_noise_lines_total",
				Help: "Total number of non-delimiter lines skipped between parts",
			},
		),

		decodeErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multiparse_decoder_errors_total",
				Help: "Total number of fatal decoder errors",
			},
			[]string{"reason"},
		),

		bufferedBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "multiparse_decoder_buffered_bytes",
				Help:    "Bytes retained by a decoder after each feed",
				Buckets: sizeBuckets,
			},
		),

		storeOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multiparse_store_operations_total",
				Help: "Total number of part store operations",
			},
			[]string{"operation", "status"},
		),

		storeOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "multiparse_store_operation_duration_seconds",
				Help:    "Part store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		storedParts: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "multiparse_store_parts",
				Help: "Number of parts in the store",
			},
		),

		authRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multiparse_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),

		healthChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multiparse_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"status"},
		),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) BytesFed(n int) {
	m.bytesFedTotal.Add(float64(n))
}

func (m *Metrics) PartDecoded(contentType string, size int) {
	m.partsDecodedTotal.WithLabelValues(contentType).Inc()
	m.partSizeBytes.Observe(float64(size))
}

func (m *Metrics) NoiseLine() {
	m.noiseLinesTotal.Inc()
}

func (m *Metrics) DecodeError(reason string) {
	m.decodeErrorsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) BufferSize(n int) {
	m.bufferedBytes.Observe(float64(n))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordStoreOperation records a part store operation
func (m *Metrics) RecordStoreOperation(operation string, success bool, duration time.Duration) {
	m.storeOperationsTotal.WithLabelValues(operation, status(success)).Inc()
	m.storeOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetStoredParts updates the store size gauge
func (m *Metrics) SetStoredParts(n int) {
	m.storedParts.Set(float64(n))
}

// RecordAuthRequest records an authentication request
func (m *Metrics) RecordAuthRequest(success bool) {
	m.authRequestsTotal.WithLabelValues(status(success)).Inc()
}

// RecordHealthCheck records a health check
func (m *Metrics) RecordHealthCheck(success bool) {
	m.healthChecksTotal.WithLabelValues(status(success)).Inc()
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// InstrumentAuthMiddleware counts authentication outcomes of requests that
// carried an API key
func (m *Metrics) InstrumentAuthMiddleware(next func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasAPIKey := r.Header.Get("X-API-Key") != ""

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next(h).ServeHTTP(rw, r)

			if hasAPIKey {
				m.RecordAuthRequest(rw.statusCode != http.StatusUnauthorized)
			}
		})
	}
}

func status(success bool) string {
	if success {
		return statusSuccess
	}
	return statusError
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the wrapper
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets websocket upgrades pass through the wrapper
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
