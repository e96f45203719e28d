// Package chat implements the room-scoped websocket fan-out engine.
package chat

// Client-to-server event types.
const (
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventSendMessage = "send-message"
	EventToggleLike  = "toggle-like"
	EventTogglePin   = "toggle-pin"
	EventDeleteMsg   = "delete-message"
)

// Server-to-client event types.
const (
	EventConnected      = "connected"
	EventChatHistory    = "chat-history"
	EventChatMessage    = "chat-message"
	EventMessageLiked   = "message-liked"
	EventMessagePinned  = "message-pinned"
	EventMessageDeleted = "message-deleted"
	EventOnlineUsers    = "online-users"
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventError          = "error"
	EventKicked         = "kicked"
)

// Event is the wire envelope for everything the server pushes. Room carries
// the canonical room key for room-scoped events and is empty for
// connection-scoped ones.
type Event struct {
	Type    string      `json:"type"`
	Room    string      `json:"room,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// InboundEvent is what clients send. Room accepts either a durable broadcast
// ID or a slug; the handler resolves it to the canonical key.
type InboundEvent struct {
	Type      string `json:"type"`
	Room      string `json:"room,omitempty"`
	Content   string `json:"content,omitempty"`
	MessageID uint   `json:"message_id,omitempty"`
	ReplyToID *uint  `json:"reply_to_id,omitempty"`
}

// ErrorPayload is the body of an error event. Errors are always unicast to
// the client whose action failed, never broadcast to the room.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
