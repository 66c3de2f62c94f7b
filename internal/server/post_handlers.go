package server

import (
	"errors"

	"snaptag/internal/models"

	"github.com/gofiber/fiber/v2"
)

// statusForAppError maps service-layer error codes to HTTP statuses.
func statusForAppError(err error) int {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case "NOT_FOUND":
		return fiber.StatusNotFound
	case "VALIDATION_ERROR":
		return fiber.StatusBadRequest
	case "UNAUTHORIZED":
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

// GetPosts handles GET /api/posts. The optional user_id query restricts the
// listing to one owner; mine=true restricts it to the caller and requires a
// valid token.
func (s *Server) GetPosts(c *fiber.Ctx) error {
	ctx := c.UserContext()

	userID := c.Query("user_id")
	if c.QueryBool("mine") {
		caller, ok := s.optionalUserID(c)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}
		userID = caller
	}

	posts, err := s.postService.List(ctx, userID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	return c.JSON(posts)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")

	post, err := s.postService.Get(ctx, id)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	if post == nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Post", id))
	}

	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := c.Locals("userID").(string)
	id := c.Params("id")

	if err := s.postService.Delete(ctx, id, userID); err != nil {
		return models.RespondWithError(c, statusForAppError(err), err)
	}

	return c.JSON(fiber.Map{
		"message": "Post deleted successfully",
	})
}
