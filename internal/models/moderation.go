package models

import "time"

// ModerationActionType enumerates moderation verbs.
type ModerationActionType string

const (
	// ActionKick removes a user from a room without a standing restriction.
	ActionKick ModerationActionType = "kick"
	// ActionBan blocks a user from a room, optionally for a limited duration.
	ActionBan ModerationActionType = "ban"
	// ActionMute keeps a user in the room but rejects their messages.
	ActionMute ModerationActionType = "mute"
)

// ModerationAction stores room-scoped moderation records. A ban or mute is
// in effect while IsActive is set and ExpiresAt is nil or in the future.
// TargetFingerprint is the secondary match key for anonymous identities.
type ModerationAction struct {
	ID                uint                 `gorm:"primaryKey" json:"id"`
	RoomKey           string               `gorm:"size:64;not null;index:idx_mod_room_target" json:"room_key"`
	TargetUserID      *uint                `gorm:"index:idx_mod_room_target" json:"target_user_id,omitempty"`
	TargetFingerprint string               `gorm:"size:128;index" json:"target_fingerprint,omitempty"`
	ModeratorID       uint                 `gorm:"not null;index" json:"moderator_id"`
	ActionType        ModerationActionType `gorm:"size:10;not null" json:"action_type"`
	Reason            string               `gorm:"type:text;default:''" json:"reason"`
	DurationMinutes   *int                 `json:"duration_minutes,omitempty"`
	ExpiresAt         *time.Time           `json:"expires_at,omitempty"`
	IsActive          bool                 `gorm:"default:true;index" json:"is_active"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`

	Moderator *User `gorm:"foreignKey:ModeratorID" json:"moderator,omitempty"`
}

// TableName specifies the table name for GORM.
func (ModerationAction) TableName() string {
	return "moderation_actions"
}

// InEffect reports whether the record restricts the target at time now.
func (a *ModerationAction) InEffect(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// ChatSession is the persisted presence record for a room participant. It
// carries denormalized ban/mute flags so the engine can fast-path admission
// checks without scanning the full moderation history.
type ChatSession struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	RoomKey     string     `gorm:"size:64;not null;uniqueIndex:idx_session_room_fp" json:"room_key"`
	UserID      *uint      `gorm:"index" json:"user_id,omitempty"`
	Fingerprint string     `gorm:"size:128;not null;uniqueIndex:idx_session_room_fp" json:"fingerprint,omitempty"`
	IsOnline    bool       `gorm:"default:true;index" json:"is_online"`
	IsBanned    bool       `gorm:"default:false" json:"is_banned"`
	IsMuted     bool       `gorm:"default:false" json:"is_muted"`
	JoinedAt    time.Time  `json:"joined_at"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (ChatSession) TableName() string {
	return "chat_sessions"
}
