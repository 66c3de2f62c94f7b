// Package seed populates the database with demo data for local development.
package seed

import (
	"fmt"
	"log"
	"math/rand"

	"snaptag/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// labelPool mimics the kind of labels the detector produces.
var labelPool = []string{
	"Nature", "Outdoors", "Person", "Dog", "Cat", "Food",
	"City", "Beach", "Mountain", "Sunset", "Car", "Architecture",
}

type Seeder struct {
	db *gorm.DB
}

func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// ClearAll removes seeded rows, children first.
func (s *Seeder) ClearAll() error {
	for _, stmt := range []string{
		"DELETE FROM post_tags",
		"DELETE FROM tags",
		"DELETE FROM posts",
		"DELETE FROM orphaned_objects",
		"DELETE FROM users",
	} {
		if err := s.db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// SeedUsers creates n users with provider-style ids.
func (s *Seeder) SeedUsers(n int) ([]models.User, error) {
	users := make([]models.User, 0, n)
	for i := 0; i < n; i++ {
		user := models.User{
			ID:        fmt.Sprintf("user_%s", gofakeit.UUID()),
			FirstName: gofakeit.FirstName(),
			LastName:  gofakeit.LastName(),
			Email:     gofakeit.Email(),
			AvatarURL: gofakeit.ImageURL(128, 128),
		}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	log.Printf("Seeded %d users", len(users))
	return users, nil
}

// SeedPosts spreads n posts across the given users, each tagged with up to
// four labels from the pool.
func (s *Seeder) SeedPosts(users []models.User, n int) error {
	if len(users) == 0 {
		return fmt.Errorf("no users to attach posts to")
	}

	for i := 0; i < n; i++ {
		owner := users[rand.Intn(len(users))]
		post := models.Post{
			UserID:      owner.ID,
			Title:       gofakeit.Sentence(3),
			Description: gofakeit.Sentence(8),
			StorageKey: fmt.Sprintf("uploads/%s/%d-%s.jpg",
				owner.ID, gofakeit.Number(1_000_000, 9_999_999), gofakeit.Word()),
		}
		if err := s.db.Create(&post).Error; err != nil {
			return err
		}

		for _, name := range pickLabels(rand.Intn(5)) {
			tag, err := s.findOrCreateTag(name)
			if err != nil {
				return err
			}
			link := models.PostTag{
				PostID:     post.ID,
				TagID:      tag.ID,
				Confidence: float64(gofakeit.Number(70, 99)),
			}
			if err := s.db.Create(&link).Error; err != nil {
				return err
			}
		}
	}

	log.Printf("Seeded %d posts", n)
	return nil
}

func (s *Seeder) findOrCreateTag(name string) (*models.Tag, error) {
	var tag models.Tag
	if err := s.db.Where("name = ?", name).FirstOrCreate(&tag, models.Tag{Name: name}).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

func pickLabels(k int) []string {
	if k > len(labelPool) {
		k = len(labelPool)
	}
	shuffled := make([]string, len(labelPool))
	copy(shuffled, labelPool)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:k]
}
