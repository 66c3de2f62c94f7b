package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tag is a detected label shared across posts. Names are unique and case
// sensitive; the same label resolves to the same row regardless of which
// post introduced it. Tags are created lazily and never deleted by the
// ingestion path.
type Tag struct {
	ID   string `gorm:"type:uuid;primaryKey" json:"id"`
	Name string `gorm:"size:255;uniqueIndex;not null" json:"name"`
}

// BeforeCreate assigns a UUID primary key when none is set.
func (t *Tag) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// PostTag links a post to a tag with the detector's confidence score.
// The composite primary key enforces at most one row per (post, tag) pair.
type PostTag struct {
	PostID     string  `gorm:"type:uuid;primaryKey" json:"post_id"`
	TagID      string  `gorm:"type:uuid;primaryKey" json:"tag_id"`
	Confidence float64 `gorm:"type:decimal(5,2);not null" json:"confidence"`
}

// TagWithConfidence is the read-side projection of a post's tag.
type TagWithConfidence struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}
