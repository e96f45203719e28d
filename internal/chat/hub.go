package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"airwave/internal/identity"
	"airwave/internal/middleware"
	"airwave/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const maxConnsPerIdentity = 8

// Hub manages websocket connections for broadcast chat rooms. It is
// room-centric: a connection may sit in zero, one, or several rooms over its
// life, and every room-scoped event fans out to the room's current members.
type Hub struct {
	mu sync.RWMutex

	// Map: connectionID -> Client
	clients map[string]*Client

	// Map: roomKey -> set of member clients
	rooms map[string]map[*Client]struct{}

	// Map: client -> set of joined roomKeys
	clientRooms map[*Client]map[string]struct{}

	// Map: identityKey -> connection count, for the per-identity cap
	identityConns map[string]int

	wsLog *observability.WSLogger
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "chat hub" }

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		rooms:         make(map[string]map[*Client]struct{}),
		clientRooms:   make(map[*Client]map[string]struct{}),
		identityConns: make(map[string]int),
		wsLog:         observability.NewWSLogger("chat hub"),
	}
}

// Register creates a Client for the connection and announces the new global
// online count. Returns an error when the identity already holds too many
// connections.
func (h *Hub) Register(conn *websocket.Conn, ident identity.Identity) (*Client, error) {
	client := NewClient(h, conn, uuid.NewString(), ident)
	if err := h.RegisterClient(client); err != nil {
		return nil, err
	}
	return client, nil
}

// RegisterClient adds an already-built client to the hub.
func (h *Hub) RegisterClient(client *Client) error {
	identKey := client.Identity.Key()

	h.mu.Lock()
	if h.identityConns[identKey] >= maxConnsPerIdentity {
		h.mu.Unlock()
		return fmt.Errorf("connection limit reached for %s", identKey)
	}

	h.clients[client.ID] = client
	h.clientRooms[client] = make(map[string]struct{})
	h.identityConns[identKey]++
	total := len(h.clients)
	h.mu.Unlock()

	middleware.ActiveWebSockets.Inc()
	h.wsLog.LogConnect(context.Background(), identKey, "")

	h.BroadcastAll(Event{
		Type:    EventOnlineUsers,
		Payload: map[string]interface{}{"count": total},
	})
	return nil
}

// UnregisterClient removes a connection, detaches it from every room it
// joined, and announces the new global online count.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		// Already removed.
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.ID)

	identKey := client.Identity.Key()
	if n := h.identityConns[identKey]; n <= 1 {
		delete(h.identityConns, identKey)
	} else {
		h.identityConns[identKey] = n - 1
	}

	leftRooms := make([]string, 0, len(h.clientRooms[client]))
	for roomKey := range h.clientRooms[client] {
		leftRooms = append(leftRooms, roomKey)
		if members, ok := h.rooms[roomKey]; ok {
			delete(members, client)
			observability.WebSocketRoomConnections.WithLabelValues(roomKey).Set(float64(len(members)))
			if len(members) == 0 {
				delete(h.rooms, roomKey)
			}
		}
	}
	delete(h.clientRooms, client)
	total := len(h.clients)
	h.mu.Unlock()

	close(client.Send)
	middleware.ActiveWebSockets.Dec()
	h.wsLog.LogDisconnect(context.Background(), identKey, "", "connection closed")

	for _, roomKey := range leftRooms {
		h.BroadcastToRoom(roomKey, Event{
			Type: EventUserLeft,
			Room: roomKey,
			Payload: map[string]interface{}{
				"display_name": client.Identity.DisplayName,
			},
		})
	}

	h.BroadcastAll(Event{
		Type:    EventOnlineUsers,
		Payload: map[string]interface{}{"count": total},
	})
}

// JoinRoom adds the client to a room. Joining twice is a no-op; the return
// value reports whether membership actually changed.
func (h *Hub) JoinRoom(client *Client, roomKey string) bool {
	h.mu.Lock()
	rooms, ok := h.clientRooms[client]
	if !ok {
		// Client already unregistered.
		h.mu.Unlock()
		return false
	}
	if _, joined := rooms[roomKey]; joined {
		h.mu.Unlock()
		return false
	}

	rooms[roomKey] = struct{}{}
	if h.rooms[roomKey] == nil {
		h.rooms[roomKey] = make(map[*Client]struct{})
	}
	h.rooms[roomKey][client] = struct{}{}
	members := len(h.rooms[roomKey])
	h.mu.Unlock()

	observability.WebSocketRoomConnections.WithLabelValues(roomKey).Set(float64(members))
	h.wsLog.LogConnect(context.Background(), client.Identity.Key(), roomKey)
	return true
}

// LeaveRoom removes the client from a room. Leaving a room the client is not
// in is a no-op.
func (h *Hub) LeaveRoom(client *Client, roomKey string) bool {
	h.mu.Lock()
	rooms, ok := h.clientRooms[client]
	if !ok {
		h.mu.Unlock()
		return false
	}
	if _, joined := rooms[roomKey]; !joined {
		h.mu.Unlock()
		return false
	}

	delete(rooms, roomKey)
	members := 0
	if set, ok := h.rooms[roomKey]; ok {
		delete(set, client)
		members = len(set)
		if members == 0 {
			delete(h.rooms, roomKey)
		}
	}
	h.mu.Unlock()

	observability.WebSocketRoomConnections.WithLabelValues(roomKey).Set(float64(members))
	h.wsLog.LogDisconnect(context.Background(), client.Identity.Key(), roomKey, "left room")
	return true
}

// InRoom reports whether the client currently belongs to the room.
func (h *Hub) InRoom(client *Client, roomKey string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms, ok := h.clientRooms[client]
	if !ok {
		return false
	}
	_, joined := rooms[roomKey]
	return joined
}

// RoomMemberCount returns how many connections are joined to the room.
func (h *Hub) RoomMemberCount(roomKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomKey])
}

// OnlineCount returns the number of registered connections.
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToRoom sends an event to every member of a room. The payload is
// marshaled once and the per-client sends never block the hub.
func (h *Hub) BroadcastToRoom(roomKey string, event Event) {
	messageJSON, err := json.Marshal(event)
	if err != nil {
		h.wsLog.LogError(context.Background(), "", roomKey, err, event.Type)
		return
	}

	h.mu.RLock()
	members, ok := h.rooms[roomKey]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(members))
	for client := range members {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.TrySend(messageJSON)
	}

	observability.MessageThroughput.WithLabelValues(roomKey, event.Type).Inc()
}

// BroadcastAll sends an event to every connected client regardless of room.
func (h *Hub) BroadcastAll(event Event) {
	messageJSON, err := json.Marshal(event)
	if err != nil {
		h.wsLog.LogError(context.Background(), "", "", err, event.Type)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.TrySend(messageJSON)
	}
}

// EvictFromRoom force-removes every connection of the target identity from a
// room and pushes a kicked notice so their client stops participating
// immediately instead of on the next rejected action.
func (h *Hub) EvictFromRoom(roomKey, identityKey, reason string) int {
	h.mu.Lock()
	members, ok := h.rooms[roomKey]
	if !ok {
		h.mu.Unlock()
		return 0
	}

	evicted := make([]*Client, 0, 2)
	for client := range members {
		if client.Identity.Key() == identityKey {
			evicted = append(evicted, client)
		}
	}
	for _, client := range evicted {
		delete(members, client)
		if rooms, ok := h.clientRooms[client]; ok {
			delete(rooms, roomKey)
		}
	}
	remaining := len(members)
	if remaining == 0 {
		delete(h.rooms, roomKey)
	}
	h.mu.Unlock()

	observability.WebSocketRoomConnections.WithLabelValues(roomKey).Set(float64(remaining))

	notice, err := json.Marshal(Event{
		Type: EventKicked,
		Room: roomKey,
		Payload: map[string]interface{}{
			"reason": reason,
		},
	})
	if err == nil {
		for _, client := range evicted {
			client.TrySend(notice)
		}
	}

	for _, client := range evicted {
		h.wsLog.LogDisconnect(context.Background(), client.Identity.Key(), roomKey, "kicked")
	}
	return len(evicted)
}

// Shutdown gracefully closes all websocket connections
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.wsLog.LogLifecycle(ctx, "shutdown", map[string]interface{}{
		"connections": len(h.clients),
		"rooms":       len(h.rooms),
	})

	for _, client := range h.clients {
		if client.Conn == nil {
			continue
		}
		if err := client.Conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"server_shutdown","message":"Server is shutting down"}`)); err != nil {
			log.Printf("failed to write shutdown message for %s: %v", client.Identity.Key(), err)
		}
		if err := client.Conn.Close(); err != nil {
			log.Printf("failed to close websocket for %s: %v", client.Identity.Key(), err)
		}
	}

	// Clear all state
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[*Client]struct{})
	h.clientRooms = make(map[*Client]map[string]struct{})
	h.identityConns = make(map[string]int)

	return nil
}
