// Package sse implements the one-way broadcast notification channel over
// server-sent events.
package sse

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"airwave/internal/models"
	"airwave/internal/observability"

	"github.com/google/uuid"
)

// Notification event types pushed to listeners.
const (
	EventConnected        = "connected"
	EventBroadcastLive    = "broadcast:live"
	EventBroadcastStarted = "broadcast:started"
	EventBroadcastEnded   = "broadcast:ended"
)

const clientBufferSize = 16

// Notification is the JSON body of every SSE frame: an event type, its
// payload under data, and the server-side emit time.
type Notification struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func notify(eventType string, data interface{}) Notification {
	return Notification{Type: eventType, Data: data, Timestamp: time.Now().UTC()}
}

// Client is one attached SSE listener. Frames arrive on Ch pre-encoded as
// complete "data: ...\n\n" blocks.
type Client struct {
	ID string
	Ch chan []byte
}

// Channel fans broadcast lifecycle notifications out to attached listeners
// and replays the currently-live set to late joiners.
type Channel struct {
	mu sync.RWMutex

	// Map: clientID -> Client
	clients map[string]*Client

	// Map: broadcastID -> live broadcast, replayed on attach
	live map[uint]*models.Broadcast
}

// NewChannel creates a new Channel instance
func NewChannel() *Channel {
	return &Channel{
		clients: make(map[string]*Client),
		live:    make(map[uint]*models.Broadcast),
	}
}

// Attach registers a listener, queues its connection ack, and replays a
// live notification for every broadcast currently on air so late joiners
// see the same world as everyone else. Callers may supply their own client
// ID; reconnecting with the same ID replaces the previous stream.
func (c *Channel) Attach(clientID string) *Client {
	if clientID == "" {
		clientID = uuid.NewString()
	}

	c.mu.Lock()
	replay := make([]*models.Broadcast, 0, len(c.live))
	for _, b := range c.live {
		replay = append(replay, b)
	}

	// The buffer must hold the ack plus the full replay, or attaching while
	// many broadcasts are live would block before the stream writer drains.
	buf := clientBufferSize
	if n := len(replay) + 1; n > buf {
		buf = n
	}
	client := &Client{
		ID: clientID,
		Ch: make(chan []byte, buf),
	}
	prev, replaced := c.clients[client.ID]
	c.clients[client.ID] = client
	c.mu.Unlock()

	if replaced {
		close(prev.Ch)
		observability.SSEConnections.Dec()
	}

	client.Ch <- encodeFrame(notify(EventConnected, map[string]string{"client_id": client.ID}))
	for _, b := range replay {
		client.Ch <- encodeFrame(notify(EventBroadcastLive, b))
	}

	observability.SSEConnections.Inc()
	return client
}

// Detach removes the listener registered under clientID and closes its frame
// channel. Idempotent.
func (c *Channel) Detach(clientID string) {
	c.mu.Lock()
	client, ok := c.clients[clientID]
	if ok {
		delete(c.clients, clientID)
	}
	c.mu.Unlock()

	if ok {
		close(client.Ch)
		observability.SSEConnections.Dec()
	}
}

// DetachClient removes exactly this listener. If a reconnect already replaced
// it under the same ID, the replacement stays attached.
func (c *Channel) DetachClient(client *Client) {
	c.mu.Lock()
	current, ok := c.clients[client.ID]
	if ok && current == client {
		delete(c.clients, client.ID)
	} else {
		ok = false
	}
	c.mu.Unlock()

	if ok {
		close(client.Ch)
		observability.SSEConnections.Dec()
	}
}

// NotifyStarted records the broadcast as live and announces it to every
// listener.
func (c *Channel) NotifyStarted(b *models.Broadcast) {
	c.mu.Lock()
	c.live[b.ID] = b
	c.mu.Unlock()

	c.multicast(notify(EventBroadcastStarted, b))
}

// NotifyEnded announces the end of a broadcast. Ending a broadcast that was
// never announced is a no-op, so duplicate end events stay silent.
func (c *Channel) NotifyEnded(b *models.Broadcast) {
	c.mu.Lock()
	_, wasLive := c.live[b.ID]
	delete(c.live, b.ID)
	c.mu.Unlock()

	if !wasLive {
		return
	}
	c.multicast(notify(EventBroadcastEnded, b))
}

// LiveCount returns how many broadcasts the channel currently considers live.
func (c *Channel) LiveCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.live)
}

// ClientCount returns the number of attached listeners.
func (c *Channel) ClientCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clients)
}

// Stats summarizes the channel for the stats endpoint: attached listener
// count and the broadcasts currently tracked as live.
func (c *Channel) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	live := make([]*models.Broadcast, 0, len(c.live))
	for _, b := range c.live {
		live = append(live, b)
	}
	return map[string]interface{}{
		"activeClients":    len(c.clients),
		"activeBroadcasts": live,
	}
}

// multicast pushes one frame to every listener. The client set is snapshotted
// first and slow listeners are collected during the loop, then detached after
// it, so the registry is never mutated mid-iteration.
func (c *Channel) multicast(n Notification) {
	frame := encodeFrame(n)

	c.mu.RLock()
	targets := make([]*Client, 0, len(c.clients))
	for _, client := range c.clients {
		targets = append(targets, client)
	}
	c.mu.RUnlock()

	var failed []*Client
	for _, client := range targets {
		if !trySend(client, frame) {
			failed = append(failed, client)
		}
	}

	for _, client := range failed {
		log.Printf("SSE: Detaching slow listener %s", client.ID)
		observability.WebSocketBackpressureDrops.WithLabelValues("sse channel", "full").Inc()
		c.DetachClient(client)
	}
}

// trySend delivers without blocking. A concurrent Detach can close the
// channel under us; the recover treats that the same as a full buffer.
func trySend(client *Client, frame []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = true // already detached, nothing more to do
		}
	}()

	select {
	case client.Ch <- frame:
		return true
	default:
		return false
	}
}

func encodeFrame(n Notification) []byte {
	body, err := json.Marshal(n)
	if err != nil {
		log.Printf("SSE: Failed to marshal %q notification: %v", n.Type, err)
		return []byte("data: {}\n\n")
	}
	return []byte(fmt.Sprintf("data: %s\n\n", body))
}
