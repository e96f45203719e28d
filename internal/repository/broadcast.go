package repository

import (
	"context"
	"time"

	"airwave/internal/models"

	"gorm.io/gorm"
)

// BroadcastRepository defines the interface for broadcast data operations.
type BroadcastRepository interface {
	Create(ctx context.Context, b *models.Broadcast) error
	GetByID(ctx context.Context, id uint) (*models.Broadcast, error)
	GetBySlug(ctx context.Context, slug string) (*models.Broadcast, error)
	GetLive(ctx context.Context) ([]*models.Broadcast, error)
	SetLive(ctx context.Context, id uint, live bool) (*models.Broadcast, error)
}

type broadcastRepository struct {
	db *gorm.DB
}

// NewBroadcastRepository creates a new broadcast repository
func NewBroadcastRepository(db *gorm.DB) BroadcastRepository {
	return &broadcastRepository{db: db}
}

func (r *broadcastRepository) Create(ctx context.Context, b *models.Broadcast) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *broadcastRepository) GetByID(ctx context.Context, id uint) (*models.Broadcast, error) {
	var b models.Broadcast
	if err := r.db.WithContext(ctx).First(&b, id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *broadcastRepository) GetBySlug(ctx context.Context, slug string) (*models.Broadcast, error) {
	var b models.Broadcast
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *broadcastRepository) GetLive(ctx context.Context) ([]*models.Broadcast, error) {
	var broadcasts []*models.Broadcast
	err := r.db.WithContext(ctx).
		Where("is_live = ?", true).
		Order("started_at DESC").
		Find(&broadcasts).Error
	if err != nil {
		return nil, err
	}
	return broadcasts, nil
}

// SetLive flips the live flag and stamps the transition time, returning the
// updated record.
func (r *broadcastRepository) SetLive(ctx context.Context, id uint, live bool) (*models.Broadcast, error) {
	b, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{"is_live": live}
	if live {
		updates["started_at"] = now
		updates["ended_at"] = nil
	} else {
		updates["ended_at"] = now
	}

	if err := r.db.WithContext(ctx).Model(b).Updates(updates).Error; err != nil {
		return nil, err
	}
	return b, nil
}
