// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "concierge"

var (
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method", "path", "status"})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route pattern.",
	}, []string{"method", "path", "status"})

	// ResponderDuration buckets stop just past the default 15s responder timeout.
	ResponderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "responder",
		Name:      "duration_seconds",
		Help:      "Automated reply generation latency.",
		Buckets:   []float64{.25, .5, 1, 2, 5, 10, 15, 20},
	}, []string{"provider", "outcome"})

	ResponderTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "responder",
		Name:      "tokens_total",
		Help:      "Provider tokens consumed by automated replies.",
	}, []string{"provider", "direction"})

	WebsocketConnectionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "realtime",
		Name:      "connections_active",
		Help:      "Open realtime connections.",
	}, []string{"kind"})

	BusDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "realtime",
		Name:      "dropped_clients_total",
		Help:      "Realtime clients dropped because their send buffer was full.",
	})

	ConversationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "conversations_created_total",
		Help:      "Conversations created per channel.",
	}, []string{"channel"})

	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "messages_total",
		Help:      "Messages persisted per channel and sender.",
	}, []string{"channel", "sender"})

	PlatformDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "platform",
		Name:      "deliveries_total",
		Help:      "Outbound pushes to the external messaging platform.",
	}, []string{"kind", "status"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "platform",
		Name:      "webhook_events_total",
		Help:      "Inbound platform webhook events by outcome.",
	}, []string{"outcome"})

	JournalPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "journal",
		Name:      "published_total",
		Help:      "Events mirrored to the NATS journal.",
	}, []string{"subject", "status"})
)

// RecordRequest observes one HTTP request. duration is in seconds.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordResponder observes one generation call. Token counts of zero are not recorded.
func RecordResponder(provider, outcome string, duration float64, tokensIn, tokensOut int) {
	ResponderDuration.WithLabelValues(provider, outcome).Observe(duration)
	if tokensIn > 0 {
		ResponderTokens.WithLabelValues(provider, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		ResponderTokens.WithLabelValues(provider, "out").Add(float64(tokensOut))
	}
}

func RecordMessage(channel, sender string) {
	MessagesTotal.WithLabelValues(channel, sender).Inc()
}

// RecordDelivery counts a platform push; err decides the status label.
func RecordDelivery(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	PlatformDeliveries.WithLabelValues(kind, status).Inc()
}
