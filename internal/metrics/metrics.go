package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics (message service)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garagechat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "garagechat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	MessagesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "garagechat_messages_stored_total",
			Help: "Total messages persisted by the message service",
		},
	)

	InboundPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garagechat_inbound_published_total",
			Help: "Inbound events published to receivers",
		},
		[]string{"result"}, // "ok" or "error"
	)

	// Client-side sync metrics
	GatewayCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garagechat_gateway_calls_total",
			Help: "Calls made by the sync gateway",
		},
		[]string{"op", "result"},
	)

	ReadRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "garagechat_read_sync_retries_total",
			Help: "markRead retries performed by the reconciler",
		},
	)

	UnreadTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garagechat_unread_transitions_total",
			Help: "Unread counter transitions",
		},
		[]string{"kind"},
	)

	NotificationsShown = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "garagechat_notifications_shown_total",
			Help: "New-message alerts raised",
		},
	)
)
