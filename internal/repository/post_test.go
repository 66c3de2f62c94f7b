package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"snaptag/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedUser(t *testing.T, id string) *models.User {
	t.Helper()
	user := &models.User{
		ID:        id,
		FirstName: "Test",
		LastName:  "User",
		Email:     fmt.Sprintf("%s@example.com", id),
	}
	require.NoError(t, testDB.Create(user).Error)
	return user
}

func ingestPost(t *testing.T, repo PostRepository, userID, title string, labels []models.TagWithConfidence) *models.Post {
	t.Helper()
	post := &models.Post{
		UserID:     userID,
		Title:      title,
		StorageKey: fmt.Sprintf("uploads/%s/%d-%s.jpg", userID, time.Now().UnixNano(), title),
	}
	_, err := repo.CreateWithTags(context.Background(), post, labels)
	require.NoError(t, err)
	return post
}

func TestCreateWithTagsSharesTagRowsAcrossPosts(t *testing.T) {
	cleanTables(t)
	repo := NewPostRepository(testDB)
	seedUser(t, "user_1")

	ingestPost(t, repo, "user_1", "first", []models.TagWithConfidence{
		{Name: "Dog", Confidence: 98.5},
		{Name: "Pet", Confidence: 80.25},
	})
	ingestPost(t, repo, "user_1", "second", []models.TagWithConfidence{
		{Name: "Dog", Confidence: 91.0},
	})

	var tagCount int64
	require.NoError(t, testDB.Model(&models.Tag{}).Count(&tagCount).Error)
	assert.Equal(t, int64(2), tagCount)

	var linkCount int64
	require.NoError(t, testDB.Model(&models.PostTag{}).Count(&linkCount).Error)
	assert.Equal(t, int64(3), linkCount)

	// Both posts point at the same tag row, each with its own confidence.
	var dogTag models.Tag
	require.NoError(t, testDB.Where("name = ?", "Dog").First(&dogTag).Error)
	var confidences []float64
	require.NoError(t, testDB.Model(&models.PostTag{}).
		Where("tag_id = ?", dogTag.ID).
		Order("confidence DESC").
		Pluck("confidence", &confidences).Error)
	assert.Equal(t, []float64{98.5, 91.0}, confidences)
}

func TestCreateWithTagsReturnsAppliedLabels(t *testing.T) {
	cleanTables(t)
	repo := NewPostRepository(testDB)
	seedUser(t, "user_1")

	post := &models.Post{
		UserID:     "user_1",
		Title:      "beach day",
		StorageKey: "uploads/user_1/1-beach.jpg",
	}
	applied, err := repo.CreateWithTags(context.Background(), post, []models.TagWithConfidence{
		{Name: "Beach", Confidence: 95.11},
		{Name: "Outdoors", Confidence: 88.4},
	})
	require.NoError(t, err)
	require.NotEmpty(t, post.ID)
	assert.Equal(t, []models.TagWithConfidence{
		{Name: "Beach", Confidence: 95.11},
		{Name: "Outdoors", Confidence: 88.4},
	}, applied)
}

func TestPostTagCompositeKeyRejectsDuplicateLink(t *testing.T) {
	cleanTables(t)
	repo := NewPostRepository(testDB)
	seedUser(t, "user_1")

	post := ingestPost(t, repo, "user_1", "dup", []models.TagWithConfidence{
		{Name: "Cat", Confidence: 90},
	})

	var tag models.Tag
	require.NoError(t, testDB.Where("name = ?", "Cat").First(&tag).Error)

	err := testDB.Create(&models.PostTag{PostID: post.ID, TagID: tag.ID, Confidence: 50}).Error
	require.Error(t, err)
}

func TestGetWithTagsReturnsNotFoundForMissingPost(t *testing.T) {
	cleanTables(t)
	repo := NewPostRepository(testDB)

	_, err := repo.GetWithTags(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestListWithTagsGroupsRowsPerPost(t *testing.T) {
	cleanTables(t)
	repo := NewPostRepository(testDB)
	seedUser(t, "user_1")
	seedUser(t, "user_2")

	tagged := ingestPost(t, repo, "user_1", "tagged", []models.TagWithConfidence{
		{Name: "Mountain", Confidence: 97.2},
		{Name: "Nature", Confidence: 85.0},
	})
	untagged := ingestPost(t, repo, "user_2", "untagged", nil)

	posts, err := repo.ListWithTags(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, posts, 2)

	byID := map[string]*models.Post{}
	for _, p := range posts {
		byID[p.ID] = p
	}

	require.Contains(t, byID, tagged.ID)
	assert.ElementsMatch(t, []models.TagWithConfidence{
		{Name: "Mountain", Confidence: 97.2},
		{Name: "Nature", Confidence: 85.0},
	}, byID[tagged.ID].Tags)

	require.Contains(t, byID, untagged.ID)
	assert.NotNil(t, byID[untagged.ID].Tags)
	assert.Empty(t, byID[untagged.ID].Tags)
}

func TestListWithTagsFiltersByOwner(t *testing.T) {
	cleanTables(t)
	repo := NewPostRepository(testDB)
	seedUser(t, "user_1")
	seedUser(t, "user_2")

	mine := ingestPost(t, repo, "user_1", "mine", nil)
	ingestPost(t, repo, "user_2", "theirs", nil)

	posts, err := repo.ListWithTags(context.Background(), "user_1")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, mine.ID, posts[0].ID)

	posts, err = repo.ListWithTags(context.Background(), "user_3")
	require.NoError(t, err)
	assert.NotNil(t, posts)
	assert.Empty(t, posts)
}

func TestDeleteWithLinksRemovesLinksButKeepsTags(t *testing.T) {
	cleanTables(t)
	repo := NewPostRepository(testDB)
	seedUser(t, "user_1")

	post := ingestPost(t, repo, "user_1", "doomed", []models.TagWithConfidence{
		{Name: "Sunset", Confidence: 92.0},
	})

	require.NoError(t, repo.DeleteWithLinks(context.Background(), post.ID))

	_, err := repo.GetByID(context.Background(), post.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	var linkCount int64
	require.NoError(t, testDB.Model(&models.PostTag{}).
		Where("post_id = ?", post.ID).Count(&linkCount).Error)
	assert.Zero(t, linkCount)

	// Tag rows outlive the posts that introduced them.
	var tagCount int64
	require.NoError(t, testDB.Model(&models.Tag{}).Count(&tagCount).Error)
	assert.Equal(t, int64(1), tagCount)
}
