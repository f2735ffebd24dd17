// Package prometheus provides Prometheus-backed implementations of the
// interfaces in pkg/metrics.
//
// Collectors are registered on the registry created by
// metrics.InitRegistry. Every metric name carries the "httpfileserv_"
// prefix. Label values are bounded: methods outside a fixed set collapse
// to "other" and a connection that never received a response reports
// status "none".
package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/httpfileserv/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// httpMetrics is the Prometheus implementation of metrics.HTTPMetrics.
//
// All collectors are safe for concurrent use, so one instance can be shared
// by every connection goroutine.
type httpMetrics struct {
	// requestsTotal counts finished requests by method and status.
	requestsTotal *prometheus.CounterVec

	// requestDuration observes accept-to-close latency in milliseconds.
	requestDuration *prometheus.HistogramVec

	// bytesSent sums response bytes, headers included, by status.
	bytesSent *prometheus.CounterVec

	// requestsInFlight is the number of connections being served.
	requestsInFlight prometheus.Gauge

	// connectionsAccepted and connectionsClosed track the connection
	// lifecycle; their difference is the number of open connections.
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter

	// acceptErrors counts failed Accept calls that were retried.
	acceptErrors prometheus.Counter

	// traversalBlocked counts request paths that had ".." stripped.
	traversalBlocked prometheus.Counter
}

// NewHTTPMetrics creates a new Prometheus-backed HTTPMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewHTTPMetrics() metrics.HTTPMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopHTTPMetrics()
	}
	return newHTTPMetrics(metrics.GetRegistry())
}

// newHTTPMetrics registers the collectors on reg. Registering twice on the
// same registry panics, so tests pass a fresh prometheus.NewRegistry.
func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "httpfileserv_requests_total",
				Help: "Total number of requests by method and status",
			},
			[]string{"method", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "httpfileserv_request_duration_milliseconds",
				Help: "Duration of requests in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
					60000, // socket timeout
				},
			},
			[]string{"status"},
		),
		bytesSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "httpfileserv_bytes_sent_total",
				Help: "Total response bytes written, headers included",
			},
			[]string{"status"},
		),
		requestsInFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "httpfileserv_requests_in_flight",
				Help: "Requests currently being served (0 or 1)",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "httpfileserv_connections_accepted_total",
				Help: "Total number of connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "httpfileserv_connections_closed_total",
				Help: "Total number of connections closed",
			},
		),
		acceptErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "httpfileserv_accept_errors_total",
				Help: "Total number of failed accept calls",
			},
		),
		traversalBlocked: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "httpfileserv_traversal_blocked_total",
				Help: "Total number of request paths with '..' sequences removed",
			},
		),
	}
}

// methodLabel keeps the label set bounded: clients choose the method string.
func methodLabel(method string) string {
	switch method {
	case "GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS", "PATCH":
		return method
	case "":
		return "none"
	default:
		return "other"
	}
}

// statusLabel renders status, using "none" when nothing was sent.
func statusLabel(status int) string {
	if status == 0 {
		return "none"
	}
	return strconv.Itoa(status)
}

// RecordRequest counts the request and observes its duration. Zero-byte
// responses leave bytesSent untouched so no empty series is created.
func (m *httpMetrics) RecordRequest(method string, status int, duration time.Duration, bytes int64) {
	s := statusLabel(status)
	m.requestsTotal.WithLabelValues(methodLabel(method), s).Inc()
	m.requestDuration.WithLabelValues(s).Observe(float64(duration.Microseconds()) / 1000)
	if bytes > 0 {
		m.bytesSent.WithLabelValues(s).Add(float64(bytes))
	}
}

func (m *httpMetrics) RecordRequestStart() {
	m.requestsInFlight.Inc()
}

func (m *httpMetrics) RecordRequestEnd() {
	m.requestsInFlight.Dec()
}

func (m *httpMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *httpMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *httpMetrics) RecordAcceptError() {
	m.acceptErrors.Inc()
}

func (m *httpMetrics) RecordTraversalBlocked() {
	m.traversalBlocked.Inc()
}
