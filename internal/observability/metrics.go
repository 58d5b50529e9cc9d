package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "combox_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketEventsTotal counts inbound WebSocket events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "combox_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "combox_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"reason"})

	// MessagesBroadcast counts messages fanned out per channel.
	MessagesBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "combox_messages_broadcast_total",
		Help: "Total number of messages broadcast to channel groups",
	}, []string{"channel_id", "message_type"})

	// ModerationCommands counts executed moderation commands by kind and outcome.
	ModerationCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "combox_moderation_commands_total",
		Help: "Total moderation commands processed by kind and outcome",
	}, []string{"command", "outcome"})

	// NotificationFanoutErrors counts isolated per-recipient notification failures.
	NotificationFanoutErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "combox_notification_fanout_errors_total",
		Help: "Total per-recipient notification failures during message fan-out",
	})

	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "combox_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})
)
