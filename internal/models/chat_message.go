package models

import "time"

// Message types stored on ChatMessage.
const (
	MessageTypeUser   = "user"
	MessageTypeSystem = "system"
)

// ChatMessage is a persisted chat message scoped to a broadcast room.
// LikedBy holds the identity keys of everyone who currently likes the
// message; LikeCount is kept equal to len(LikedBy) by the chat service,
// which serializes every like toggle per message.
type ChatMessage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RoomKey     string    `gorm:"size:64;not null;index" json:"room_key"`
	AuthorID    *uint     `gorm:"index" json:"author_id,omitempty"`
	AuthorName  string    `gorm:"size:100;not null" json:"author_name"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	MessageType string    `gorm:"size:20;not null;default:'user'" json:"message_type"`
	ReplyToID   *uint     `json:"reply_to_id,omitempty"`
	IsPinned    bool      `gorm:"default:false" json:"is_pinned"`
	LikeCount   int       `gorm:"default:0" json:"like_count"`
	LikedBy     []string  `gorm:"serializer:json;type:text" json:"liked_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// LikedByContains reports whether the identity key is in the like set.
func (m *ChatMessage) LikedByContains(identityKey string) bool {
	for _, k := range m.LikedBy {
		if k == identityKey {
			return true
		}
	}
	return false
}
