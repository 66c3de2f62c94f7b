package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"snaptag/internal/config"
	"snaptag/internal/middleware"
	"snaptag/internal/models"
	"snaptag/internal/service"

	"github.com/stretchr/testify/mock"
)

// MockPostRepository is a mock of the PostRepository interface.
type MockPostRepository struct {
	mock.Mock
}

func (m *MockPostRepository) Create(ctx context.Context, post *models.Post) error {
	args := m.Called(ctx, post)
	return args.Error(0)
}

func (m *MockPostRepository) CreateWithTags(ctx context.Context, post *models.Post, labels []models.TagWithConfidence) ([]models.TagWithConfidence, error) {
	args := m.Called(ctx, post, labels)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TagWithConfidence), args.Error(1)
}

func (m *MockPostRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *MockPostRepository) GetWithTags(ctx context.Context, id string) (*models.Post, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *MockPostRepository) ListWithTags(ctx context.Context, userID string) ([]*models.Post, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Post), args.Error(1)
}

func (m *MockPostRepository) DeleteWithLinks(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockUserRepository is a mock of the UserRepository interface.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockOrphanRepository is a mock of the OrphanRepository interface.
type MockOrphanRepository struct {
	mock.Mock
}

func (m *MockOrphanRepository) Record(ctx context.Context, storageKey, reason string) error {
	args := m.Called(ctx, storageKey, reason)
	return args.Error(0)
}

func (m *MockOrphanRepository) ListPending(ctx context.Context, limit int) ([]*models.OrphanedObject, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.OrphanedObject), args.Error(1)
}

func (m *MockOrphanRepository) MarkCleaned(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// fakeObjectStore records calls instead of talking to S3.
type fakeObjectStore struct {
	putKeys   []string
	putErr    error
	signErr   error
	deleteErr error
}

func (f *fakeObjectStore) Put(_ context.Context, key, _ string, body io.Reader) error {
	if f.putErr != nil {
		return f.putErr
	}
	_, _ = io.Copy(io.Discard, body)
	f.putKeys = append(f.putKeys, key)
	return nil
}

func (f *fakeObjectStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://signed.example/" + key, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, _ string) error {
	return f.deleteErr
}

func (f *fakeObjectStore) Readable(_ context.Context, _ string) error {
	return nil
}

// fakeDetector returns a fixed label set.
type fakeDetector struct {
	labels []models.TagWithConfidence
}

func (f *fakeDetector) DetectLabels(_ context.Context, _ string, _ int32, _ float32) []models.TagWithConfidence {
	return f.labels
}

// fakeVerifier accepts or rejects every payload.
type fakeVerifier struct {
	err error
}

func (f *fakeVerifier) Verify(_ []byte, _ http.Header) error {
	return f.err
}

func testServerConfig() *config.Config {
	return &config.Config{
		Port:             "0",
		Env:              "test",
		JWTSecret:        "test-secret",
		UploadMaxSizeMB:  1,
		SignedURLTTLSecs: 60,
		ProbeMaxAttempts: 1,
	}
}

// newTestServer wires a Server around mocks, mirroring NewServerWithDeps
// without a database or Redis.
func newTestServer(posts *MockPostRepository, users *MockUserRepository,
	store *fakeObjectStore, detector *fakeDetector, verifier WebhookVerifier) *Server {

	cfg := testServerConfig()
	orphans := new(MockOrphanRepository)

	s := &Server{
		config:     cfg,
		store:      store,
		detector:   detector,
		verifier:   verifier,
		userRepo:   users,
		postRepo:   posts,
		orphanRepo: orphans,
	}
	s.postService = service.NewPostService(posts, orphans, store, detector, cfg, middleware.Logger)
	s.userService = service.NewUserService(users, middleware.Logger)
	return s
}
