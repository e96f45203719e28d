package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	BroadcastKeyPrefix     = "broadcast:id:%d"
	BroadcastSlugKeyPrefix = "broadcast:slug:%s"
	LiveBroadcastsKey      = "broadcasts:live"
)

const (
	BroadcastTTL = 5 * time.Minute
	LiveListTTL  = 30 * time.Second
)

func BroadcastKey(id uint) string {
	return fmt.Sprintf(BroadcastKeyPrefix, id)
}

func BroadcastSlugKey(slug string) string {
	return fmt.Sprintf(BroadcastSlugKeyPrefix, slug)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateBroadcast(ctx context.Context, id uint, slug string) {
	Invalidate(ctx, BroadcastKey(id))
	if slug != "" {
		Invalidate(ctx, BroadcastSlugKey(slug))
	}
	Invalidate(ctx, LiveBroadcastsKey)
}
