package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocketBackpressureDrops counts messages dropped because a client's
	// send buffer was full.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airwave_websocket_backpressure_drops_total",
		Help: "Messages dropped due to slow websocket consumers",
	}, []string{"hub", "reason"})

	// WebSocketRoomConnections tracks how many clients are joined to each room.
	WebSocketRoomConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "airwave_websocket_room_connections",
		Help: "Current websocket connections per chat room",
	}, []string{"room"})

	// MessageThroughput counts chat events fanned out, by room and type.
	MessageThroughput = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airwave_chat_messages_total",
		Help: "Chat events broadcast to rooms",
	}, []string{"room", "message_type"})

	// SSEConnections tracks attached notification-stream listeners.
	SSEConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "airwave_sse_connections_active",
		Help: "Active server-sent-event notification listeners",
	})

	// BroadcastTransitions counts go-live and end-of-show events.
	BroadcastTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airwave_broadcast_transitions_total",
		Help: "Broadcast lifecycle transitions",
	}, []string{"event"})
)
