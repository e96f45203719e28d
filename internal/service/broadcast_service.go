package service

import (
	"context"
	"errors"

	"airwave/internal/cache"
	"airwave/internal/models"
	"airwave/internal/observability"
	"airwave/internal/repository"

	"gorm.io/gorm"
)

// BroadcastService owns broadcast lifecycle transitions.
type BroadcastService struct {
	broadcasts repository.BroadcastRepository
}

// NewBroadcastService returns a new BroadcastService.
func NewBroadcastService(broadcasts repository.BroadcastRepository) *BroadcastService {
	return &BroadcastService{broadcasts: broadcasts}
}

// Create persists a new broadcast.
func (s *BroadcastService) Create(ctx context.Context, b *models.Broadcast) error {
	if b.Title == "" {
		return models.NewValidationError("broadcast title is required")
	}
	if b.Slug == "" {
		return models.NewValidationError("broadcast slug is required")
	}
	if err := s.broadcasts.Create(ctx, b); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Live returns the broadcasts currently on air.
func (s *BroadcastService) Live(ctx context.Context) ([]*models.Broadcast, error) {
	var live []*models.Broadcast
	err := cache.Aside(ctx, cache.LiveBroadcastsKey, &live, cache.LiveListTTL, func() error {
		found, err := s.broadcasts.GetLive(ctx)
		if err != nil {
			return err
		}
		live = found
		return nil
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return live, nil
}

// GoLive marks a broadcast live. Going live twice is a validation error.
func (s *BroadcastService) GoLive(ctx context.Context, id uint) (*models.Broadcast, error) {
	current, err := s.broadcasts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("broadcast", id)
		}
		return nil, models.NewInternalError(err)
	}
	if current.IsLive {
		return nil, models.NewValidationError("broadcast is already live")
	}

	b, err := s.broadcasts.SetLive(ctx, id, true)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	cache.InvalidateBroadcast(ctx, b.ID, b.Slug)
	observability.BroadcastTransitions.WithLabelValues("started").Inc()
	return b, nil
}

// End marks a broadcast off air. Ending an already-ended broadcast is a
// validation error.
func (s *BroadcastService) End(ctx context.Context, id uint) (*models.Broadcast, error) {
	current, err := s.broadcasts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("broadcast", id)
		}
		return nil, models.NewInternalError(err)
	}
	if !current.IsLive {
		return nil, models.NewValidationError("broadcast is not live")
	}

	b, err := s.broadcasts.SetLive(ctx, id, false)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	cache.InvalidateBroadcast(ctx, b.ID, b.Slug)
	observability.BroadcastTransitions.WithLabelValues("ended").Inc()
	return b, nil
}
