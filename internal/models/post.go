// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Post represents an uploaded image and its metadata. The storage key is an
// opaque pointer into the object store and is never exposed in post
// payloads; ImageURL is derived on read from a freshly signed URL and never
// persisted.
type Post struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string    `gorm:"size:255;not null;index" json:"user_id"`
	User        User      `gorm:"foreignKey:UserID" json:"-"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	StorageKey  string    `gorm:"size:1024;not null" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// ImageURL is computed per read; see PostService.
	ImageURL string `gorm:"-" json:"image_url,omitempty"`
	// Tags is populated from the post_tags join at query time.
	Tags []TagWithConfidence `gorm:"-" json:"tags"`
}

// BeforeCreate assigns a UUID primary key when none is set.
func (p *Post) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
