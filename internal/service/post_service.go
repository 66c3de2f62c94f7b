// Package service implements the application's business logic on top of the
// repositories and external collaborators.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"snaptag/internal/config"
	"snaptag/internal/models"
	"snaptag/internal/observability"
	"snaptag/internal/repository"
	"snaptag/internal/storage"
	"snaptag/internal/vision"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const (
	// MaxLabels caps how many labels a single detection call may apply.
	MaxLabels = 10
	// MinConfidence is the detection confidence floor, in percent.
	MinConfidence = 70

	DefaultSignedURLTTL     = time.Hour
	DefaultProbeMaxAttempts = 5
	DefaultSweepInterval    = 5 * time.Minute

	sweepBatchSize = 50
)

// CreatePostInput carries everything the ingestion path needs. DisplayURL is
// used only for the immediate response and is never persisted.
type CreatePostInput struct {
	UserID      string
	Title       string
	Description string
	StorageKey  string
	DisplayURL  string
}

// CreatePostResult is the consolidated outcome of one ingestion.
type CreatePostResult struct {
	Post *models.Post               `json:"post"`
	Tags []models.TagWithConfidence `json:"tags"`
}

// PostService orchestrates the upload ingestion path: label detection,
// post persistence, tag dedup/linking, signed URL issuance, and deletion
// with orphan tracking.
type PostService struct {
	posts    repository.PostRepository
	orphans  repository.OrphanRepository
	store    storage.ObjectStore
	detector vision.LabelDetector
	logger   *slog.Logger

	signedURLTTL     time.Duration
	probeMaxAttempts uint64
	sweepInterval    time.Duration
	sweepOnce        sync.Once
}

// NewPostService wires a PostService from its collaborators and config.
func NewPostService(posts repository.PostRepository, orphans repository.OrphanRepository,
	store storage.ObjectStore, detector vision.LabelDetector,
	cfg *config.Config, logger *slog.Logger) *PostService {

	signedURLTTL := DefaultSignedURLTTL
	probeMaxAttempts := uint64(DefaultProbeMaxAttempts)
	sweepInterval := DefaultSweepInterval

	if cfg != nil {
		if cfg.SignedURLTTLSecs > 0 {
			signedURLTTL = time.Duration(cfg.SignedURLTTLSecs) * time.Second
		}
		if cfg.ProbeMaxAttempts > 0 {
			probeMaxAttempts = uint64(cfg.ProbeMaxAttempts)
		}
		if cfg.SweepIntervalSecs > 0 {
			sweepInterval = time.Duration(cfg.SweepIntervalSecs) * time.Second
		}
	}

	return &PostService{
		posts:            posts,
		orphans:          orphans,
		store:            store,
		detector:         detector,
		logger:           logger,
		signedURLTTL:     signedURLTTL,
		probeMaxAttempts: probeMaxAttempts,
		sweepInterval:    sweepInterval,
	}
}

// Create runs one ingestion. A successful upload always yields a post: label
// detection failure degrades to zero tags, and a failed tagged insert falls
// back to inserting the bare post.
func (s *PostService) Create(ctx context.Context, in CreatePostInput) (*CreatePostResult, error) {
	if in.UserID == "" {
		return nil, models.NewValidationError("Invalid user")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, models.NewValidationError("Title is required")
	}
	if in.StorageKey == "" {
		return nil, models.NewValidationError("Missing storage key")
	}

	span, ctx := observability.NewSpan(ctx, "post.ingest")
	defer span.End()
	span.AddAttributes(attribute.String("storage.key", in.StorageKey))

	labels := dedupeLabels(s.detectWhenReadable(ctx, in.StorageKey))
	span.AddAttributes(attribute.Int("labels.count", len(labels)))

	post := &models.Post{
		UserID:      in.UserID,
		Title:       in.Title,
		Description: in.Description,
		StorageKey:  in.StorageKey,
	}

	applied, err := s.posts.CreateWithTags(ctx, post, labels)
	if err != nil {
		s.logger.ErrorContext(ctx, "tagged insert failed, falling back to bare post",
			slog.String("storage_key", in.StorageKey),
			slog.String("error", err.Error()),
		)
		observability.IngestFallbacks.Inc()
		span.SetError(err)

		if createErr := s.posts.Create(ctx, post); createErr != nil {
			return nil, models.NewInternalError(createErr)
		}
		applied = []models.TagWithConfidence{}
	}

	post.ImageURL = in.DisplayURL
	post.Tags = applied

	return &CreatePostResult{Post: post, Tags: applied}, nil
}

// detectWhenReadable probes the object store until the freshly written
// object is visible, then asks the detector for labels. Probe exhaustion or
// detector failure both degrade to no labels.
func (s *PostService) detectWhenReadable(ctx context.Context, storageKey string) []models.TagWithConfidence {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	// WithMaxRetries counts retries after the first probe, so a budget of n
	// attempts allows n-1 retries.
	retries := uint64(0)
	if s.probeMaxAttempts > 1 {
		retries = s.probeMaxAttempts - 1
	}

	probe := func() error { return s.store.Readable(ctx, storageKey) }
	if err := backoff.Retry(probe, backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx)); err != nil {
		s.logger.WarnContext(ctx, "object never became readable, skipping label detection",
			slog.String("storage_key", storageKey),
			slog.String("error", err.Error()),
		)
		return nil
	}

	return s.detector.DetectLabels(ctx, storageKey, MaxLabels, MinConfidence)
}

// dedupeLabels keeps the first occurrence of each label name. The detector
// orders labels by confidence, so the first is also the strongest.
func dedupeLabels(labels []models.TagWithConfidence) []models.TagWithConfidence {
	if len(labels) < 2 {
		return labels
	}
	seen := make(map[string]struct{}, len(labels))
	out := make([]models.TagWithConfidence, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l.Name]; ok {
			continue
		}
		seen[l.Name] = struct{}{}
		out = append(out, l)
	}
	return out
}

// List returns posts (optionally restricted to one owner) with their tags
// and a freshly signed URL per post. An owner with zero posts yields an
// empty list.
func (s *PostService) List(ctx context.Context, userID string) ([]*models.Post, error) {
	posts, err := s.posts.ListWithTags(ctx, userID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, post := range posts {
		s.signPost(ctx, post)
	}
	return posts, nil
}

// Get returns one post with tags and a fresh signed URL, or nil (not an
// error) when no row matches.
func (s *PostService) Get(ctx context.Context, id string) (*models.Post, error) {
	post, err := s.posts.GetWithTags(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	s.signPost(ctx, post)
	return post, nil
}

// signPost replaces the post's storage key with a time-limited signed URL.
// Issuance failure is degraded: the post is returned without a URL.
func (s *PostService) signPost(ctx context.Context, post *models.Post) {
	url, err := s.store.SignedURL(ctx, post.StorageKey, s.signedURLTTL)
	if err != nil {
		s.logger.WarnContext(ctx, "signed URL issuance failed",
			slog.String("post_id", post.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	post.ImageURL = url
}

// Delete removes a post. Database rows go first, inside one transaction;
// the backing object second. If object deletion then fails the orphan is
// recorded for the cleanup sweep rather than leaving a dangling row.
func (s *PostService) Delete(ctx context.Context, id, requesterID string) error {
	span, ctx := observability.NewSpan(ctx, "post.delete")
	defer span.End()

	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Post", id)
		}
		return models.NewInternalError(err)
	}

	if requesterID != "" && post.UserID != requesterID {
		return models.NewUnauthorizedError("You can only delete your own posts")
	}

	if err := s.posts.DeleteWithLinks(ctx, post.ID); err != nil {
		span.SetError(err)
		return models.NewInternalError(err)
	}

	if err := s.store.Delete(ctx, post.StorageKey); err != nil {
		observability.OrphanedObjects.Inc()
		s.logger.WarnContext(ctx, "object deletion failed, recorded for cleanup sweep",
			slog.String("storage_key", post.StorageKey),
			slog.String("error", err.Error()),
		)
		if recErr := s.orphans.Record(ctx, post.StorageKey, err.Error()); recErr != nil {
			s.logger.ErrorContext(ctx, "failed to record orphaned object",
				slog.String("storage_key", post.StorageKey),
				slog.String("error", recErr.Error()),
			)
		}
	}

	return nil
}

// StartSweeper launches the background orphan cleanup loop. Safe to call
// more than once; only the first call starts the goroutine.
func (s *PostService) StartSweeper(ctx context.Context) {
	if s.orphans == nil {
		return
	}
	s.sweepOnce.Do(func() {
		go s.sweepLoop(ctx)
	})
}

func (s *PostService) sweepLoop(ctx context.Context) {
	for {
		if !sleepContext(ctx, s.sweepInterval) {
			return
		}
		s.SweepOrphans(ctx)
	}
}

// SweepOrphans retries deletion for recorded orphaned objects and marks the
// cleaned ones. Failures stay pending for the next sweep.
func (s *PostService) SweepOrphans(ctx context.Context) {
	orphans, err := s.orphans.ListPending(ctx, sweepBatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list orphaned objects",
			slog.String("error", err.Error()),
		)
		return
	}

	for _, orphan := range orphans {
		if err := s.store.Delete(ctx, orphan.StorageKey); err != nil {
			observability.OrphanSweeps.WithLabelValues("failed").Inc()
			continue
		}
		if err := s.orphans.MarkCleaned(ctx, orphan.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to mark orphan cleaned",
				slog.String("storage_key", orphan.StorageKey),
				slog.String("error", err.Error()),
			)
			continue
		}
		observability.OrphanSweeps.WithLabelValues("cleaned").Inc()
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
