package chat

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPresence(t *testing.T) (*Presence, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p := NewPresence(rdb, PresenceConfig{ReaperInterval: -1})
	t.Cleanup(p.Stop)
	return p, mr
}

func TestPresence_JoinLeave(t *testing.T) {
	p, _ := newTestPresence(t)
	ctx := context.Background()

	p.Join(ctx, "broadcast:1", "user:1")
	p.Join(ctx, "broadcast:1", "anon:203.0.113.7")

	assert.Equal(t, 2, p.Count("broadcast:1"))
	assert.True(t, p.InRoom("broadcast:1", "user:1"))

	p.Leave(ctx, "broadcast:1", "user:1")
	assert.Equal(t, 1, p.Count("broadcast:1"))
	assert.False(t, p.InRoom("broadcast:1", "user:1"))
}

func TestPresence_MultipleConnectionsSameIdentity(t *testing.T) {
	p, _ := newTestPresence(t)
	ctx := context.Background()

	// Two tabs, one identity.
	p.Join(ctx, "broadcast:1", "user:1")
	p.Join(ctx, "broadcast:1", "user:1")
	assert.Equal(t, 1, p.Count("broadcast:1"))

	p.Leave(ctx, "broadcast:1", "user:1")
	assert.True(t, p.InRoom("broadcast:1", "user:1"), "identity stays while a connection remains")

	p.Leave(ctx, "broadcast:1", "user:1")
	assert.False(t, p.InRoom("broadcast:1", "user:1"))
}

func TestPresence_RedisMirror(t *testing.T) {
	p, mr := newTestPresence(t)
	ctx := context.Background()

	p.Join(ctx, "broadcast:1", "user:1")
	members, err := mr.SMembers("presence:room:broadcast:1")
	require.NoError(t, err)
	assert.Contains(t, members, "user:1")

	p.Leave(ctx, "broadcast:1", "user:1")
	members, _ = mr.SMembers("presence:room:broadcast:1")
	assert.NotContains(t, members, "user:1")
}

func TestPresence_IdentitiesFiltersStaleMirrorEntries(t *testing.T) {
	p, mr := newTestPresence(t)
	ctx := context.Background()

	p.Join(ctx, "broadcast:1", "user:1")

	// A crashed process left a set member behind with no last-seen key.
	mr.SAdd("presence:room:broadcast:1", "user:99")

	idents := p.Identities(ctx, "broadcast:1")
	assert.Contains(t, idents, "user:1")
	assert.NotContains(t, idents, "user:99")
}

func TestPresence_ReapOnce(t *testing.T) {
	p, mr := newTestPresence(t)
	ctx := context.Background()

	p.Join(ctx, "broadcast:1", "user:1")
	mr.SAdd("presence:room:broadcast:1", "user:42")

	p.reapOnce(ctx)

	members, err := mr.SMembers("presence:room:broadcast:1")
	require.NoError(t, err)
	assert.Contains(t, members, "user:1")
	assert.NotContains(t, members, "user:42")
}

func TestPresence_WorksWithoutRedis(t *testing.T) {
	p := NewPresence(nil, PresenceConfig{})
	defer p.Stop()
	ctx := context.Background()

	p.Join(ctx, "broadcast:1", "user:1")
	assert.Equal(t, 1, p.Count("broadcast:1"))
	assert.Equal(t, []string{"user:1"}, p.Identities(ctx, "broadcast:1"))

	p.Leave(ctx, "broadcast:1", "user:1")
	assert.Equal(t, 0, p.Count("broadcast:1"))
}
