package repository

import (
	"context"
	"time"

	"snaptag/internal/models"

	"gorm.io/gorm"
)

// OrphanRepository tracks storage objects whose deletion failed after their
// database rows were removed, so a background sweep can retry.
type OrphanRepository interface {
	Record(ctx context.Context, storageKey, reason string) error
	ListPending(ctx context.Context, limit int) ([]*models.OrphanedObject, error)
	MarkCleaned(ctx context.Context, id uint) error
}

type orphanRepository struct {
	db *gorm.DB
}

// NewOrphanRepository creates a new orphaned-object repository
func NewOrphanRepository(db *gorm.DB) OrphanRepository {
	return &orphanRepository{db: db}
}

func (r *orphanRepository) Record(ctx context.Context, storageKey, reason string) error {
	return r.db.WithContext(ctx).Create(&models.OrphanedObject{
		StorageKey: storageKey,
		Reason:     reason,
	}).Error
}

func (r *orphanRepository) ListPending(ctx context.Context, limit int) ([]*models.OrphanedObject, error) {
	var orphans []*models.OrphanedObject
	err := r.db.WithContext(ctx).
		Where("cleaned_at IS NULL").
		Order("created_at").
		Limit(limit).
		Find(&orphans).Error
	return orphans, err
}

func (r *orphanRepository) MarkCleaned(ctx context.Context, id uint) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.OrphanedObject{}).
		Where("id = ?", id).
		Update("cleaned_at", &now).Error
}
