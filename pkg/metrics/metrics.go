// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RelayDuration tracks end-to-end relay exchange duration.
	RelayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_duration_seconds",
			Help:    "Relay exchange duration from dispatch to stream end",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"mode", "status"},
	)

	// RelayFramesTotal tracks upstream frames re-emitted to clients.
	RelayFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_frames_total",
			Help: "Upstream stream frames relayed to clients",
		},
		[]string{"mode"},
	)

	// RelayPartialDropsTotal counts accumulated answers discarded because the
	// upstream stream failed before its done frame.
	RelayPartialDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_partial_drops_total",
			Help: "Partial assistant responses dropped on mid-stream failure",
		},
	)

	// SSEConnectionsActive tracks active SSE relays.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// ChatsTotal tracks total chats created.
	ChatsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chats_total",
			Help: "Total chats created",
		},
	)

	// MessagesTotal tracks total persisted turns.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total persisted messages",
		},
		[]string{"role"},
	)

	// DecryptFailuresTotal counts stored fields replaced by the sentinel.
	DecryptFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "decrypt_failures_total",
			Help: "Stored fields that failed decryption on read",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordRelay records metrics for one relay exchange.
func RecordRelay(mode, status string, duration float64) {
	RelayDuration.WithLabelValues(mode, status).Observe(duration)
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
