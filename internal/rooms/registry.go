// Package rooms maps public broadcast identifiers, durable IDs or URL slugs,
// onto canonical chat room keys.
package rooms

import (
	"context"
	"errors"
	"strconv"

	"airwave/internal/cache"
	"airwave/internal/models"
	"airwave/internal/repository"

	"gorm.io/gorm"
)

// Registry resolves broadcast identifiers to canonical room keys. Lookups go
// through a Redis cache-aside layer so hot rooms do not hit the database on
// every join.
type Registry struct {
	broadcasts repository.BroadcastRepository
}

func NewRegistry(broadcasts repository.BroadcastRepository) *Registry {
	return &Registry{broadcasts: broadcasts}
}

// Resolve returns the broadcast for the given identifier. Numeric identifiers
// are tried as durable IDs first so a broadcast whose slug happens to be
// numeric never shadows another broadcast's ID. Both forms of the same
// broadcast resolve to the same canonical room key.
func (r *Registry) Resolve(ctx context.Context, identifier string) (*models.Broadcast, error) {
	if identifier == "" {
		return nil, models.NewValidationError("broadcast identifier is required")
	}

	if id, err := strconv.ParseUint(identifier, 10, 32); err == nil {
		var b models.Broadcast
		err := cache.Aside(ctx, cache.BroadcastKey(uint(id)), &b, cache.BroadcastTTL, func() error {
			found, err := r.broadcasts.GetByID(ctx, uint(id))
			if err != nil {
				return err
			}
			b = *found
			return nil
		})
		if err == nil {
			return &b, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewInternalError(err)
		}
		// Fall through to the slug lookup.
	}

	var b models.Broadcast
	err := cache.Aside(ctx, cache.BroadcastSlugKey(identifier), &b, cache.BroadcastTTL, func() error {
		found, err := r.broadcasts.GetBySlug(ctx, identifier)
		if err != nil {
			return err
		}
		b = *found
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("broadcast", identifier)
		}
		return nil, models.NewInternalError(err)
	}
	return &b, nil
}

// ResolveRoomKey is Resolve reduced to the canonical key.
func (r *Registry) ResolveRoomKey(ctx context.Context, identifier string) (string, error) {
	b, err := r.Resolve(ctx, identifier)
	if err != nil {
		return "", err
	}
	return b.RoomKey(), nil
}
