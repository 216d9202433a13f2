package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the queue API.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	messagesServed prometheus.Counter
	decodeErrors   prometheus.Gauge
	queueMessages  prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chronoview_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chronoview_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		messagesServed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chronoview_messages_served_total",
				Help: "Total number of messages returned to clients",
			},
		),
		decodeErrors: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chronoview_decode_errors",
				Help: "Messages in the loaded queue carrying a decode error",
			},
		),
		queueMessages: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chronoview_queue_messages",
				Help: "Messages in the loaded queue",
			},
		),
	}
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordMessagesServed counts messages handed to clients.
func (m *Metrics) RecordMessagesServed(n int) {
	m.messagesServed.Add(float64(n))
}

// UpdateQueueStats publishes queue-level gauges.
func (m *Metrics) UpdateQueueStats(total, decodeErrors int) {
	m.queueMessages.Set(float64(total))
	m.decodeErrors.Set(float64(decodeErrors))
}

// InstrumentHandler wraps a handler with request metrics.
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(rw, r)
		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
