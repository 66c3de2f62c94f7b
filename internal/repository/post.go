package repository

import (
	"context"
	"time"

	"snaptag/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	// Create inserts a bare post with no tag links. It is the fallback path
	// when the tagged insert fails.
	Create(ctx context.Context, post *models.Post) error
	// CreateWithTags inserts the post, resolves each label to a shared tag
	// row, and links them with confidence scores, all in one transaction.
	CreateWithTags(ctx context.Context, post *models.Post, labels []models.TagWithConfidence) ([]models.TagWithConfidence, error)
	GetByID(ctx context.Context, id string) (*models.Post, error)
	GetWithTags(ctx context.Context, id string) (*models.Post, error)
	ListWithTags(ctx context.Context, userID string) ([]*models.Post, error)
	// DeleteWithLinks removes the post's tag links and the post row in one
	// transaction. The backing object is not touched here.
	DeleteWithLinks(ctx context.Context, id string) error
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *postRepository) CreateWithTags(ctx context.Context, post *models.Post, labels []models.TagWithConfidence) ([]models.TagWithConfidence, error) {
	applied := make([]models.TagWithConfidence, 0, len(labels))

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		for _, label := range labels {
			tag, err := upsertTag(tx, label.Name)
			if err != nil {
				return err
			}
			link := models.PostTag{
				PostID:     post.ID,
				TagID:      tag.ID,
				Confidence: label.Confidence,
			}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
			applied = append(applied, models.TagWithConfidence{
				Name:       tag.Name,
				Confidence: label.Confidence,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// upsertTag resolves a label name to its shared tag row. The insert ignores
// conflicts and the re-select runs inside the same transaction, so
// concurrent uploads carrying the same new label name cannot produce
// duplicate rows or surface a unique-constraint failure.
func upsertTag(tx *gorm.DB, name string) (*models.Tag, error) {
	if err := tx.Exec(
		"INSERT INTO tags (id, name) VALUES (?, ?) ON CONFLICT (name) DO NOTHING",
		uuid.NewString(), name,
	).Error; err != nil {
		return nil, err
	}

	var tag models.Tag
	if err := tx.Where("name = ?", name).First(&tag).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

// postTagRow is the scan target for the posts ⋈ post_tags ⋈ tags join.
type postTagRow struct {
	ID            string
	UserID        string
	Title         string
	Description   string
	StorageKey    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	TagName       *string
	TagConfidence *float64
}

func (r *postRepository) joinedRows(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table("posts").
		Select("posts.id, posts.user_id, posts.title, posts.description, posts.storage_key, posts.created_at, posts.updated_at, tags.name AS tag_name, post_tags.confidence AS tag_confidence").
		Joins("LEFT JOIN post_tags ON post_tags.post_id = posts.id").
		Joins("LEFT JOIN tags ON tags.id = post_tags.tag_id")
}

func (r *postRepository) GetWithTags(ctx context.Context, id string) (*models.Post, error) {
	var rows []postTagRow
	err := r.joinedRows(ctx).
		Where("posts.id = ?", id).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	posts := groupPostRows(rows)
	if len(posts) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return posts[0], nil
}

func (r *postRepository) ListWithTags(ctx context.Context, userID string) ([]*models.Post, error) {
	query := r.joinedRows(ctx).Order("posts.created_at DESC, posts.id")
	if userID != "" {
		query = query.Where("posts.user_id = ?", userID)
	}

	var rows []postTagRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return groupPostRows(rows), nil
}

// groupPostRows folds joined rows into one post each, preserving row order
// and dropping repeated tag names within a post.
func groupPostRows(rows []postTagRow) []*models.Post {
	posts := make([]*models.Post, 0)
	byID := make(map[string]*models.Post)

	for _, row := range rows {
		post, ok := byID[row.ID]
		if !ok {
			post = &models.Post{
				ID:          row.ID,
				UserID:      row.UserID,
				Title:       row.Title,
				Description: row.Description,
				StorageKey:  row.StorageKey,
				CreatedAt:   row.CreatedAt,
				UpdatedAt:   row.UpdatedAt,
				Tags:        []models.TagWithConfidence{},
			}
			byID[row.ID] = post
			posts = append(posts, post)
		}

		if row.TagName == nil {
			continue
		}
		seen := false
		for _, t := range post.Tags {
			if t.Name == *row.TagName {
				seen = true
				break
			}
		}
		if seen {
			continue
		}
		confidence := 0.0
		if row.TagConfidence != nil {
			confidence = *row.TagConfidence
		}
		post.Tags = append(post.Tags, models.TagWithConfidence{
			Name:       *row.TagName,
			Confidence: confidence,
		})
	}

	return posts
}

func (r *postRepository) DeleteWithLinks(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.PostTag{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, "id = ?", id).Error
	})
}
