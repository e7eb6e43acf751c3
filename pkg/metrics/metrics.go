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

	// UpstreamRequestsTotal counts calls made to the inference daemon.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total requests sent to the inference daemon",
		},
		[]string{"operation", "status"},
	)

	// ChatStreamDuration tracks how long a relayed generation stays open.
	ChatStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_stream_duration_seconds",
			Help:    "Relayed chat stream duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120, 300},
		},
		[]string{"model", "status"},
	)

	// ChatStreamChunksTotal counts normalized chunk events written to clients.
	ChatStreamChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_stream_chunks_total",
			Help: "Total chunk events relayed to clients",
		},
		[]string{"model"},
	)

	// ChatTokensPerSecond records the generation speed reported on completed streams.
	ChatTokensPerSecond = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_tokens_per_second",
			Help:    "Generation speed reported by the inference daemon",
			Buckets: []float64{1, 5, 10, 20, 30, 50, 75, 100, 150, 200},
		},
		[]string{"model"},
	)

	// ChatStreamsActive tracks in-flight relayed generations.
	ChatStreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_streams_active",
			Help: "Number of chat streams currently being relayed",
		},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
	)

	// MessagesTotal tracks total messages persisted.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"role"},
	)

	// UsersRegisteredTotal tracks successful registrations.
	UsersRegisteredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "users_registered_total",
			Help: "Total user accounts registered",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordUpstream records the outcome of a call to the inference daemon.
func RecordUpstream(operation string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	UpstreamRequestsTotal.WithLabelValues(operation, status).Inc()
}

// RecordChatStream records metrics for a finished relayed generation.
func RecordChatStream(model, status string, duration float64, chunks int, tokensPerSecond float64) {
	ChatStreamDuration.WithLabelValues(model, status).Observe(duration)
	ChatStreamChunksTotal.WithLabelValues(model).Add(float64(chunks))
	if tokensPerSecond > 0 {
		ChatTokensPerSecond.WithLabelValues(model).Observe(tokensPerSecond)
	}
}

// IncrementActiveStreams increments the in-flight stream count.
func IncrementActiveStreams() {
	ChatStreamsActive.Inc()
}

// DecrementActiveStreams decrements the in-flight stream count.
func DecrementActiveStreams() {
	ChatStreamsActive.Dec()
}
