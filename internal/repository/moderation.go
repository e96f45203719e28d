package repository

import (
	"context"
	"time"

	"airwave/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ModerationRepository defines the interface for moderation records and
// presence sessions.
type ModerationRepository interface {
	CreateAction(ctx context.Context, action *models.ModerationAction) error
	ActiveActions(ctx context.Context, roomKey string, actionType models.ModerationActionType, userID *uint, fingerprint string) ([]*models.ModerationAction, error)
	ListBans(ctx context.Context, roomKey string) ([]*models.ModerationAction, error)
	DeactivateBans(ctx context.Context, roomKey string, userID *uint, fingerprint string) error

	UpsertSession(ctx context.Context, session *models.ChatSession) error
	GetSession(ctx context.Context, roomKey string, userID *uint, fingerprint string) (*models.ChatSession, error)
	MarkSessionsOffline(ctx context.Context, roomKey string, userID *uint, fingerprint string) error
	SetSessionFlags(ctx context.Context, roomKey string, userID *uint, fingerprint string, banned, muted *bool) error
	OnlineCount(ctx context.Context, roomKey string) (int64, error)
}

type moderationRepository struct {
	db *gorm.DB
}

// NewModerationRepository creates a new moderation repository
func NewModerationRepository(db *gorm.DB) ModerationRepository {
	return &moderationRepository{db: db}
}

func (r *moderationRepository) CreateAction(ctx context.Context, action *models.ModerationAction) error {
	return r.db.WithContext(ctx).Create(action).Error
}

// identityScope matches records on either the user ID or the origin
// fingerprint, so bans reach anonymous reconnects too.
func identityScope(userID *uint, fingerprint string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case userID != nil && fingerprint != "":
			return db.Where("target_user_id = ? OR target_fingerprint = ?", *userID, fingerprint)
		case userID != nil:
			return db.Where("target_user_id = ?", *userID)
		default:
			return db.Where("target_fingerprint = ?", fingerprint)
		}
	}
}

func (r *moderationRepository) ActiveActions(ctx context.Context, roomKey string, actionType models.ModerationActionType, userID *uint, fingerprint string) ([]*models.ModerationAction, error) {
	var actions []*models.ModerationAction
	err := r.db.WithContext(ctx).
		Where("room_key = ? AND action_type = ? AND is_active = ?", roomKey, actionType, true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Scopes(identityScope(userID, fingerprint)).
		Find(&actions).Error
	if err != nil {
		return nil, err
	}
	return actions, nil
}

func (r *moderationRepository) ListBans(ctx context.Context, roomKey string) ([]*models.ModerationAction, error) {
	var actions []*models.ModerationAction
	err := r.db.WithContext(ctx).
		Where("room_key = ? AND action_type = ? AND is_active = ?", roomKey, models.ActionBan, true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Order("created_at DESC").
		Find(&actions).Error
	if err != nil {
		return nil, err
	}
	return actions, nil
}

func (r *moderationRepository) DeactivateBans(ctx context.Context, roomKey string, userID *uint, fingerprint string) error {
	return r.db.WithContext(ctx).
		Model(&models.ModerationAction{}).
		Where("room_key = ? AND action_type = ?", roomKey, models.ActionBan).
		Scopes(identityScope(userID, fingerprint)).
		Update("is_active", false).Error
}

func (r *moderationRepository) UpsertSession(ctx context.Context, session *models.ChatSession) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_key"}, {Name: "fingerprint"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "is_online", "joined_at", "left_at"}),
		}).
		Create(session).Error
}

func (r *moderationRepository) GetSession(ctx context.Context, roomKey string, userID *uint, fingerprint string) (*models.ChatSession, error) {
	var session models.ChatSession
	q := r.db.WithContext(ctx).Where("room_key = ?", roomKey)
	if userID != nil {
		q = q.Where("user_id = ? OR fingerprint = ?", *userID, fingerprint)
	} else {
		q = q.Where("fingerprint = ?", fingerprint)
	}
	if err := q.Order("joined_at DESC").First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *moderationRepository) MarkSessionsOffline(ctx context.Context, roomKey string, userID *uint, fingerprint string) error {
	q := r.db.WithContext(ctx).
		Model(&models.ChatSession{}).
		Where("room_key = ?", roomKey)
	if userID != nil {
		q = q.Where("user_id = ? OR fingerprint = ?", *userID, fingerprint)
	} else {
		q = q.Where("fingerprint = ?", fingerprint)
	}
	return q.Updates(map[string]interface{}{
		"is_online": false,
		"left_at":   time.Now(),
	}).Error
}

func (r *moderationRepository) SetSessionFlags(ctx context.Context, roomKey string, userID *uint, fingerprint string, banned, muted *bool) error {
	updates := map[string]interface{}{}
	if banned != nil {
		updates["is_banned"] = *banned
	}
	if muted != nil {
		updates["is_muted"] = *muted
	}
	if len(updates) == 0 {
		return nil
	}

	q := r.db.WithContext(ctx).
		Model(&models.ChatSession{}).
		Where("room_key = ?", roomKey)
	if userID != nil {
		q = q.Where("user_id = ? OR fingerprint = ?", *userID, fingerprint)
	} else {
		q = q.Where("fingerprint = ?", fingerprint)
	}
	return q.Updates(updates).Error
}

func (r *moderationRepository) OnlineCount(ctx context.Context, roomKey string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ChatSession{}).
		Where("room_key = ? AND is_online = ?", roomKey, true).
		Count(&count).Error
	return count, err
}
