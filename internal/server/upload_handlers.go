package server

import (
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"snaptag/internal/middleware"
	"snaptag/internal/models"
	"snaptag/internal/observability"
	"snaptag/internal/service"
	"snaptag/internal/storage"

	"github.com/gofiber/fiber/v2"
)

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
}

// uploadResult is the per-file entry in the upload response.
type uploadResult struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
	Key  string `json:"key"`

	Post *models.Post               `json:"post"`
	Tags []models.TagWithConfidence `json:"tags"`
}

// UploadImages handles POST /api/uploads. Every file in the batch is
// validated before any side effect, so a rejected batch touches neither the
// object store nor the database.
func (s *Server) UploadImages(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := c.Locals("userID").(string)

	form, err := c.MultipartForm()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid multipart form"))
	}

	files := form.File["files"]
	if len(files) == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("No files uploaded"))
	}

	maxSize := int64(s.config.UploadMaxSizeMB) * 1024 * 1024
	for _, fh := range files {
		contentType := fh.Header.Get("Content-Type")
		if _, ok := allowedImageTypes[contentType]; !ok {
			observability.UploadsTotal.WithLabelValues("rejected").Inc()
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError(fmt.Sprintf("Unsupported file type: %s", contentType)))
		}
		if fh.Size > maxSize {
			observability.UploadsTotal.WithLabelValues("rejected").Inc()
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError(fmt.Sprintf("File %s exceeds the %dMB limit",
					fh.Filename, s.config.UploadMaxSizeMB)))
		}
	}

	title := strings.TrimSpace(c.FormValue("title"))
	description := c.FormValue("description")

	results := make([]uploadResult, 0, len(files))
	for _, fh := range files {
		result, err := s.ingestFile(ctx, userID, title, description, fh)
		if err != nil {
			return models.RespondWithError(c, statusForAppError(err), err)
		}
		results = append(results, *result)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"files": results,
	})
}

// ingestFile stores one file and runs the ingestion pipeline for it.
func (s *Server) ingestFile(ctx context.Context, userID, title, description string,
	fh *multipart.FileHeader) (*uploadResult, error) {

	f, err := fh.Open()
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	defer f.Close()

	key := storage.BuildObjectKey(userID, fh.Filename)
	contentType := fh.Header.Get("Content-Type")

	if err := s.store.Put(ctx, key, contentType, f); err != nil {
		observability.UploadsTotal.WithLabelValues("failed").Inc()
		return nil, models.NewInternalError(err)
	}

	displayURL, err := s.store.SignedURL(ctx, key,
		time.Duration(s.config.SignedURLTTLSecs)*time.Second)
	if err != nil {
		// Degraded: the client can still fetch the post with a fresh URL.
		middleware.Logger.WarnContext(ctx, "signed URL issuance failed after upload",
			slog.String("storage_key", key),
			slog.String("error", err.Error()),
		)
		displayURL = ""
	}

	postTitle := title
	if postTitle == "" {
		postTitle = fh.Filename
	}

	result, err := s.postService.Create(ctx, service.CreatePostInput{
		UserID:      userID,
		Title:       postTitle,
		Description: description,
		StorageKey:  key,
		DisplayURL:  displayURL,
	})
	if err != nil {
		observability.UploadsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	observability.UploadsTotal.WithLabelValues("accepted").Inc()

	return &uploadResult{
		Name: fh.Filename,
		Type: contentType,
		Size: fh.Size,
		URL:  displayURL,
		Key:  key,
		Post: result.Post,
		Tags: result.Tags,
	}, nil
}
