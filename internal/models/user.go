// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// User represents an account mirrored from the identity provider. The ID is
// the provider's identifier, not a locally generated key; rows are created
// and removed by identity webhook events.
type User struct {
	ID        string    `gorm:"primaryKey;size:255" json:"id"`
	FirstName string    `gorm:"size:255" json:"first_name"`
	LastName  string    `gorm:"size:255" json:"last_name"`
	Email     string    `gorm:"size:255;index;not null" json:"email"`
	AvatarURL string    `gorm:"size:1024" json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Posts     []Post    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"posts,omitempty"`
}
