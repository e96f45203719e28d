package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPresenceKeyPrefix = "presence:room:"
	defaultLastSeenKeyNS     = "presence:last_seen:"
	defaultPresenceTTL       = 90 * time.Second
	defaultReaperInterval    = 60 * time.Second
)

// PresenceConfig controls Redis presence mirroring and cleanup behavior.
type PresenceConfig struct {
	RoomKeyPrefix     string
	LastSeenKeyPrefix string
	LastSeenTTL       time.Duration
	ReaperInterval    time.Duration
}

// Presence tracks which identities are in which rooms. The in-memory counts
// are authoritative for this process; Redis mirrors them with a TTL so other
// processes (and crashed ones) converge on the truth.
type Presence struct {
	rdb *redis.Client

	mu sync.RWMutex
	// Map: roomKey -> identityKey -> connection count
	rooms map[string]map[string]int

	roomKeyPrefix     string
	lastSeenKeyPrefix string
	lastSeenTTL       time.Duration
	reaperInterval    time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPresence creates a tracker and starts a Redis reaper when Redis is available.
func NewPresence(rdb *redis.Client, cfg PresenceConfig) *Presence {
	p := &Presence{
		rdb:               rdb,
		rooms:             make(map[string]map[string]int),
		roomKeyPrefix:     defaultPresenceKeyPrefix,
		lastSeenKeyPrefix: defaultLastSeenKeyNS,
		lastSeenTTL:       defaultPresenceTTL,
		reaperInterval:    defaultReaperInterval,
		stopCh:            make(chan struct{}),
	}

	if cfg.RoomKeyPrefix != "" {
		p.roomKeyPrefix = cfg.RoomKeyPrefix
	}
	if cfg.LastSeenKeyPrefix != "" {
		p.lastSeenKeyPrefix = cfg.LastSeenKeyPrefix
	}
	if cfg.LastSeenTTL > 0 {
		p.lastSeenTTL = cfg.LastSeenTTL
	}
	if cfg.ReaperInterval > 0 {
		p.reaperInterval = cfg.ReaperInterval
	}

	if p.rdb != nil && p.reaperInterval > 0 {
		go p.reaperLoop()
	}

	return p
}

func (p *Presence) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
}

// Join records an identity entering a room.
func (p *Presence) Join(ctx context.Context, roomKey, identityKey string) {
	p.mu.Lock()
	if p.rooms[roomKey] == nil {
		p.rooms[roomKey] = make(map[string]int)
	}
	p.rooms[roomKey][identityKey]++
	p.mu.Unlock()

	p.Touch(ctx, roomKey, identityKey)
}

// Touch refreshes the Redis mirror for an identity in a room.
func (p *Presence) Touch(ctx context.Context, roomKey, identityKey string) {
	if p.rdb == nil {
		return
	}
	if err := p.rdb.SAdd(ctx, p.roomSetKey(roomKey), identityKey).Err(); err != nil {
		log.Printf("presence touch SADD failed for %s in %s: %v", identityKey, roomKey, err)
	}
	if err := p.rdb.SetEx(ctx, p.lastSeenKey(roomKey, identityKey), time.Now().Unix(), p.lastSeenTTL).Err(); err != nil {
		log.Printf("presence touch SETEX failed for %s in %s: %v", identityKey, roomKey, err)
	}
}

// Leave records an identity leaving a room. The Redis mirror is cleared only
// when their last connection to the room is gone.
func (p *Presence) Leave(ctx context.Context, roomKey, identityKey string) {
	p.mu.Lock()
	gone := false
	if idents, ok := p.rooms[roomKey]; ok {
		if n := idents[identityKey]; n <= 1 {
			delete(idents, identityKey)
			gone = true
			if len(idents) == 0 {
				delete(p.rooms, roomKey)
			}
		} else {
			idents[identityKey] = n - 1
		}
	}
	p.mu.Unlock()

	if gone && p.rdb != nil {
		_ = p.rdb.SRem(ctx, p.roomSetKey(roomKey), identityKey).Err()
		_ = p.rdb.Del(ctx, p.lastSeenKey(roomKey, identityKey)).Err()
	}
}

// InRoom reports whether the identity has at least one connection in the room.
func (p *Presence) InRoom(roomKey, identityKey string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rooms[roomKey][identityKey] > 0
}

// Count returns the number of distinct identities in a room.
func (p *Presence) Count(roomKey string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rooms[roomKey])
}

// Identities returns the identity keys present in a room, unioned between the
// local view and the Redis mirror with stale entries filtered out.
func (p *Presence) Identities(ctx context.Context, roomKey string) []string {
	local := p.localIdentities(roomKey)
	if p.rdb == nil {
		return local
	}

	members, err := p.rdb.SMembers(ctx, p.roomSetKey(roomKey)).Result()
	if err != nil {
		return local
	}

	seen := make(map[string]struct{}, len(members)+len(local))
	result := make([]string, 0, len(members)+len(local))

	for _, identityKey := range members {
		exists, existsErr := p.rdb.Exists(ctx, p.lastSeenKey(roomKey, identityKey)).Result()
		if existsErr != nil {
			continue
		}
		if exists == 0 {
			_ = p.rdb.SRem(ctx, p.roomSetKey(roomKey), identityKey).Err()
			continue
		}
		if _, ok := seen[identityKey]; ok {
			continue
		}
		seen[identityKey] = struct{}{}
		result = append(result, identityKey)
	}

	for _, identityKey := range local {
		if _, ok := seen[identityKey]; ok {
			continue
		}
		seen[identityKey] = struct{}{}
		result = append(result, identityKey)
	}

	return result
}

// reapOnce is test-visible and performs one cleanup pass over a room's mirror.
func (p *Presence) reapOnce(ctx context.Context) {
	if p.rdb == nil {
		return
	}

	p.mu.RLock()
	roomKeys := make([]string, 0, len(p.rooms))
	for roomKey := range p.rooms {
		roomKeys = append(roomKeys, roomKey)
	}
	p.mu.RUnlock()

	for _, roomKey := range roomKeys {
		members, err := p.rdb.SMembers(ctx, p.roomSetKey(roomKey)).Result()
		if err != nil {
			continue
		}
		for _, identityKey := range members {
			exists, existsErr := p.rdb.Exists(ctx, p.lastSeenKey(roomKey, identityKey)).Result()
			if existsErr != nil || exists > 0 {
				continue
			}
			_ = p.rdb.SRem(ctx, p.roomSetKey(roomKey), identityKey).Err()
		}
	}
}

func (p *Presence) reaperLoop() {
	ticker := time.NewTicker(p.reaperInterval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reapOnce(ctx)
		}
	}
}

func (p *Presence) localIdentities(roomKey string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	idents := make([]string, 0, len(p.rooms[roomKey]))
	for identityKey, count := range p.rooms[roomKey] {
		if count > 0 {
			idents = append(idents, identityKey)
		}
	}
	return idents
}

func (p *Presence) roomSetKey(roomKey string) string {
	return p.roomKeyPrefix + roomKey
}

func (p *Presence) lastSeenKey(roomKey, identityKey string) string {
	return p.lastSeenKeyPrefix + roomKey + ":" + identityKey
}
