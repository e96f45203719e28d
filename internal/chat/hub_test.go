package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airwave/internal/identity"
)

func testIdentity(userID uint, name string) identity.Identity {
	return identity.Identity{
		UserID:      &userID,
		DisplayName: name,
		Role:        "listener",
		Fingerprint: "203.0.113.7",
	}
}

func newTestClient(hub *Hub, id string, ident identity.Identity) *Client {
	return NewClient(hub, nil, id, ident)
}

func drain(c *Client) []Event {
	var events []Event
	for {
		select {
		case raw := <-c.Send:
			var ev Event
			if err := json.Unmarshal(raw, &ev); err == nil {
				events = append(events, ev)
			}
		default:
			return events
		}
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "c1", testIdentity(1, "alice"))

	require.NoError(t, hub.RegisterClient(client))
	assert.Equal(t, 1, hub.OnlineCount())

	// Registration announces the online count to everyone, the new
	// connection included.
	events := drain(client)
	require.NotEmpty(t, events)
	assert.Equal(t, EventOnlineUsers, events[0].Type)

	hub.UnregisterClient(client)
	assert.Equal(t, 0, hub.OnlineCount())

	// Unregistering twice must be harmless.
	hub.UnregisterClient(client)
	assert.Equal(t, 0, hub.OnlineCount())
}

func TestHub_ConnectionLimitPerIdentity(t *testing.T) {
	hub := NewHub()
	ident := testIdentity(7, "greedy")

	for i := 0; i < maxConnsPerIdentity; i++ {
		require.NoError(t, hub.RegisterClient(newTestClient(hub, string(rune('a'+i)), ident)))
	}

	err := hub.RegisterClient(newTestClient(hub, "overflow", ident))
	assert.Error(t, err)
}

func TestHub_JoinRoomIdempotent(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "c1", testIdentity(1, "alice"))
	require.NoError(t, hub.RegisterClient(client))

	assert.True(t, hub.JoinRoom(client, "broadcast:1"))
	assert.False(t, hub.JoinRoom(client, "broadcast:1"), "second join must be a no-op")
	assert.Equal(t, 1, hub.RoomMemberCount("broadcast:1"))

	assert.True(t, hub.InRoom(client, "broadcast:1"))
	assert.False(t, hub.InRoom(client, "broadcast:2"))
}

func TestHub_LeaveRoomNotJoined(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "c1", testIdentity(1, "alice"))
	require.NoError(t, hub.RegisterClient(client))

	assert.False(t, hub.LeaveRoom(client, "broadcast:9"))
}

func TestHub_BroadcastToRoomOnlyReachesMembers(t *testing.T) {
	hub := NewHub()
	member := newTestClient(hub, "c1", testIdentity(1, "alice"))
	outsider := newTestClient(hub, "c2", testIdentity(2, "bob"))
	require.NoError(t, hub.RegisterClient(member))
	require.NoError(t, hub.RegisterClient(outsider))

	hub.JoinRoom(member, "broadcast:1")
	drain(member)
	drain(outsider)

	hub.BroadcastToRoom("broadcast:1", Event{
		Type:    EventChatMessage,
		Room:    "broadcast:1",
		Payload: "hello",
	})

	memberEvents := drain(member)
	require.Len(t, memberEvents, 1)
	assert.Equal(t, EventChatMessage, memberEvents[0].Type)
	assert.Equal(t, "broadcast:1", memberEvents[0].Room)

	assert.Empty(t, drain(outsider), "non-members must not receive room events")
}

func TestHub_MultiRoomMembership(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "c1", testIdentity(1, "alice"))
	require.NoError(t, hub.RegisterClient(client))

	hub.JoinRoom(client, "broadcast:1")
	hub.JoinRoom(client, "broadcast:2")
	drain(client)

	hub.BroadcastToRoom("broadcast:1", Event{Type: EventChatMessage, Room: "broadcast:1"})
	hub.BroadcastToRoom("broadcast:2", Event{Type: EventChatMessage, Room: "broadcast:2"})

	events := drain(client)
	assert.Len(t, events, 2)
}

func TestHub_UnregisterAnnouncesRoomDeparture(t *testing.T) {
	hub := NewHub()
	leaver := newTestClient(hub, "c1", testIdentity(1, "alice"))
	stayer := newTestClient(hub, "c2", testIdentity(2, "bob"))
	require.NoError(t, hub.RegisterClient(leaver))
	require.NoError(t, hub.RegisterClient(stayer))

	hub.JoinRoom(leaver, "broadcast:1")
	hub.JoinRoom(stayer, "broadcast:1")
	drain(stayer)

	hub.UnregisterClient(leaver)

	var sawLeft, sawCount bool
	for _, ev := range drain(stayer) {
		switch ev.Type {
		case EventUserLeft:
			sawLeft = true
		case EventOnlineUsers:
			sawCount = true
		}
	}
	assert.True(t, sawLeft, "remaining members should learn about the departure")
	assert.True(t, sawCount, "global online count should be re-announced")
	assert.Equal(t, 1, hub.RoomMemberCount("broadcast:1"))
}

func TestHub_EvictFromRoom(t *testing.T) {
	hub := NewHub()
	target := newTestClient(hub, "c1", testIdentity(1, "troublemaker"))
	bystander := newTestClient(hub, "c2", testIdentity(2, "bob"))
	require.NoError(t, hub.RegisterClient(target))
	require.NoError(t, hub.RegisterClient(bystander))

	hub.JoinRoom(target, "broadcast:1")
	hub.JoinRoom(bystander, "broadcast:1")
	drain(target)

	evicted := hub.EvictFromRoom("broadcast:1", target.Identity.Key(), "spam")
	assert.Equal(t, 1, evicted)
	assert.False(t, hub.InRoom(target, "broadcast:1"))
	assert.True(t, hub.InRoom(bystander, "broadcast:1"))

	events := drain(target)
	require.NotEmpty(t, events)
	assert.Equal(t, EventKicked, events[len(events)-1].Type)

	// The connection itself stays registered; only room membership is severed.
	assert.Equal(t, 2, hub.OnlineCount())
}

func TestHub_EvictFromRoomUnknownTarget(t *testing.T) {
	hub := NewHub()
	assert.Equal(t, 0, hub.EvictFromRoom("broadcast:1", "user:99", "spam"))
}

func TestHub_Shutdown(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "c1", testIdentity(1, "alice"))
	require.NoError(t, hub.RegisterClient(client))
	hub.JoinRoom(client, "broadcast:1")

	require.NoError(t, hub.Shutdown(context.Background()))
	assert.Equal(t, 0, hub.OnlineCount())
	assert.Equal(t, 0, hub.RoomMemberCount("broadcast:1"))
}
