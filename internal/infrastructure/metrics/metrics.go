package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat-Gateway Metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healthcompanion",
			Subsystem: "chat_gateway",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "healthcompanion",
			Subsystem: "chat_gateway",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint"},
	)

	// Relay stream counters
	RelayStreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healthcompanion",
			Subsystem: "chat_gateway",
			Name:      "relay_streams_total",
			Help:      "Total relayed chat streams",
		},
		[]string{"status"},
	)

	// Bytes relayed to callers
	RelayBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "healthcompanion",
			Subsystem: "chat_gateway",
			Name:      "relay_bytes_total",
			Help:      "Total bytes relayed from the upstream stream",
		},
	)

	// Upstream stream events by type
	StreamEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healthcompanion",
			Subsystem: "chat_gateway",
			Name:      "stream_events_total",
			Help:      "Upstream SSE events observed by the relay tap",
		},
		[]string{"event"},
	)

	// Thread persistence side-channel operations
	ThreadPersistenceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healthcompanion",
			Subsystem: "chat_gateway",
			Name:      "thread_persistence_total",
			Help:      "Thread side-channel operations by outcome",
		},
		[]string{"operation", "status"},
	)

	// DB query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "healthcompanion",
			Subsystem: "chat_gateway",
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"query_type"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordRelayStream records a completed relay stream
func RecordRelayStream(status string) {
	RelayStreamsTotal.WithLabelValues(status).Inc()
}

// RecordRelayBytes counts bytes passed through to the caller
func RecordRelayBytes(n int) {
	RelayBytesTotal.Add(float64(n))
}

// RecordStreamEvent counts one parsed upstream event
func RecordStreamEvent(event string) {
	StreamEventsTotal.WithLabelValues(event).Inc()
}

// RecordThreadPersistence records a side-channel storage operation
func RecordThreadPersistence(operation, status string) {
	ThreadPersistenceTotal.WithLabelValues(operation, status).Inc()
}

// RecordDBQuery records a database query
func RecordDBQuery(queryType string, durationSec float64) {
	DBQueryDuration.WithLabelValues(queryType).Observe(durationSec)
}
