package models

import "time"

// OrphanedObject records a storage object whose deletion failed after its
// database rows were already removed. A background sweep retries deletion
// until the object is gone, then marks the row cleaned.
type OrphanedObject struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	StorageKey string     `gorm:"size:1024;not null" json:"storage_key"`
	Reason     string     `gorm:"size:512" json:"reason"`
	CreatedAt  time.Time  `json:"created_at"`
	CleanedAt  *time.Time `gorm:"index" json:"cleaned_at,omitempty"`
}
