package repository

import (
	"context"

	"airwave/internal/models"

	"gorm.io/gorm"
)

// MessageRepository defines the interface for chat message persistence.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.ChatMessage) error
	GetByID(ctx context.Context, id uint) (*models.ChatMessage, error)
	GetRecent(ctx context.Context, roomKey string, limit int) ([]*models.ChatMessage, error)
	Update(ctx context.Context, msg *models.ChatMessage) error
	Delete(ctx context.Context, id uint) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.ChatMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepository) GetByID(ctx context.Context, id uint) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetRecent returns the newest messages for a room in chronological order.
func (r *messageRepository) GetRecent(ctx context.Context, roomKey string, limit int) ([]*models.ChatMessage, error) {
	var messages []*models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("room_key = ?", roomKey).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// Reverse so the oldest comes first for replay.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *messageRepository) Update(ctx context.Context, msg *models.ChatMessage) error {
	return r.db.WithContext(ctx).Save(msg).Error
}

func (r *messageRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.ChatMessage{}, id).Error
}
