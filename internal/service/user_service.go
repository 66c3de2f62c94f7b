package service

import (
	"context"
	"log/slog"

	"snaptag/internal/models"
	"snaptag/internal/repository"
)

// UserService mirrors identity provider lifecycle events into the local
// users table.
type UserService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

// Create persists a provider-sourced user. The provider's id is the primary
// key, so replayed events fail on the unique constraint rather than
// duplicating rows.
func (s *UserService) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return models.NewValidationError("Missing user id")
	}
	if err := s.users.Create(ctx, user); err != nil {
		return models.NewInternalError(err)
	}
	s.logger.InfoContext(ctx, "user created", slog.String("user_id", user.ID))
	return nil
}

// Delete removes a user and, via the cascade, their posts.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return models.NewValidationError("Missing user id")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return models.NewInternalError(err)
	}
	s.logger.InfoContext(ctx, "user deleted", slog.String("user_id", id))
	return nil
}
