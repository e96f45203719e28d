package models

import "time"

// Role values for platform users.
const (
	RoleListener = "listener"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

// User is the minimal identity record the real-time core consumes. Account
// management (signup, password handling, profile CRUD) lives in the wider
// platform API and is not reproduced here.
type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DisplayName string    `gorm:"size:100;not null" json:"display_name"`
	Role        string    `gorm:"size:20;not null;default:'listener'" json:"role"`
	AvatarURL   string    `gorm:"size:500" json:"avatar_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (User) TableName() string {
	return "users"
}

// IsStaff reports whether the user holds a moderation-capable role.
func (u *User) IsStaff() bool {
	return u.Role == RoleStaff || u.Role == RoleAdmin
}
