// Package models contains data structures for the application's domain models.
package models

import (
	"fmt"
	"time"
)

// Broadcast represents a live radio broadcast or podcast recording session.
// Chat rooms are keyed off this record: clients may address a room by the
// durable ID or by the human-readable slug, and both resolve to the same
// canonical room key.
type Broadcast struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Slug        string     `gorm:"size:120;not null;uniqueIndex" json:"slug"`
	Description string     `gorm:"type:text" json:"description"`
	HostUserID  *uint      `gorm:"index" json:"host_user_id,omitempty"`
	Host        *User      `gorm:"foreignKey:HostUserID" json:"host,omitempty"`
	StreamURL   string     `gorm:"size:500" json:"stream_url"`
	StreamToken string     `gorm:"size:255" json:"stream_token,omitempty"`
	IsLive      bool       `gorm:"default:false;index" json:"is_live"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Broadcast) TableName() string {
	return "broadcasts"
}

// RoomKey returns the canonical chat room key for this broadcast.
func (b *Broadcast) RoomKey() string {
	return RoomKeyForBroadcastID(b.ID)
}

// RoomKeyForBroadcastID derives the canonical room key from a durable broadcast ID.
func RoomKeyForBroadcastID(id uint) string {
	return fmt.Sprintf("broadcast:%d", id)
}
