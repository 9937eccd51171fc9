package models

import (
	"strings"
	"time"
)

// User represents an account in the system.
type User struct {
	ID               int64      `json:"id" gorm:"primaryKey"`
	Username         string     `json:"username" gorm:"size:191;uniqueIndex;not null"`
	Email            string     `json:"email" gorm:"size:191;uniqueIndex;not null"`
	FirstName        string     `json:"firstName" gorm:"size:191;not null"`
	LastName         string     `json:"lastName" gorm:"size:191;not null"`
	PasswordHash     string     `json:"-" gorm:"size:255;not null"`
	Role             Role       `json:"role" gorm:"size:32;not null;default:member"`
	RefreshToken     *string    `json:"-" gorm:"type:text"`
	ResetTokenHash   *string    `json:"-" gorm:"size:64;index"`
	ResetTokenExpiry *time.Time `json:"-"`
	ProfilePicture   *string    `json:"profilePicture" gorm:"size:512"`
	CreatedAt        time.Time  `json:"createdAt" gorm:"index"`
	UpdatedAt        time.Time  `json:"updatedAt"`

	ProfilePictureURL string `json:"profilePictureUrl,omitempty" gorm:"-"`
}

// TableName returns the database table name for the User model.
func (User) TableName() string {
	return "users"
}

// Identity is the projection of a user attached to authenticated requests.
// It never carries credentials or personal names.
type Identity struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	ProfilePicture *string   `json:"profilePicture"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TableName maps Identity onto the users table.
func (Identity) TableName() string {
	return "users"
}

// NormalizeHandle lower-cases and trims usernames and emails.
func NormalizeHandle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Identity returns the session projection of u.
func (u *User) Identity() Identity {
	return Identity{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Role:           u.Role,
		ProfilePicture: u.ProfilePicture,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}
