package server

import (
	"encoding/json"
	"net/http"

	"snaptag/internal/models"

	"github.com/gofiber/fiber/v2"
	svix "github.com/svix/svix-webhooks/go"
)

// WebhookVerifier checks provider signatures on incoming webhook payloads.
type WebhookVerifier interface {
	Verify(payload []byte, headers http.Header) error
}

type svixVerifier struct {
	wh *svix.Webhook
}

// NewSvixVerifier builds a verifier for Svix-signed webhooks (the scheme
// Clerk uses) from the endpoint's signing secret.
func NewSvixVerifier(secret string) (WebhookVerifier, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, err
	}
	return &svixVerifier{wh: wh}, nil
}

func (v *svixVerifier) Verify(payload []byte, headers http.Header) error {
	return v.wh.Verify(payload, headers)
}

// clerkEvent mirrors the identity provider's webhook envelope, keeping only
// the fields the handler consumes. Missing fields decode to "".
type clerkEvent struct {
	Type string `json:"type"`
	Data struct {
		ID             string `json:"id"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		ImageURL       string `json:"image_url"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

// ClerkWebhook handles POST /api/webhooks/clerk.
func (s *Server) ClerkWebhook(c *fiber.Ctx) error {
	ctx := c.UserContext()

	if s.verifier == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewValidationError("Webhook verification is not configured"))
	}

	headers := http.Header{}
	for _, h := range []string{"svix-id", "svix-timestamp", "svix-signature"} {
		if v := c.Get(h); v != "" {
			headers.Set(h, v)
		}
	}

	payload := c.Body()
	if err := s.verifier.Verify(payload, headers); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid webhook signature"))
	}

	var event clerkEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid webhook payload"))
	}

	switch event.Type {
	case "user.created":
		email := ""
		if len(event.Data.EmailAddresses) > 0 {
			email = event.Data.EmailAddresses[0].EmailAddress
		}
		user := &models.User{
			ID:        event.Data.ID,
			FirstName: event.Data.FirstName,
			LastName:  event.Data.LastName,
			Email:     email,
			AvatarURL: event.Data.ImageURL,
		}
		if err := s.userService.Create(ctx, user); err != nil {
			return models.RespondWithError(c, statusForAppError(err), err)
		}
	case "user.deleted":
		if err := s.userService.Delete(ctx, event.Data.ID); err != nil {
			return models.RespondWithError(c, statusForAppError(err), err)
		}
	default:
		// Unknown event types are acknowledged so the provider stops retrying.
	}

	return c.JSON(fiber.Map{"received": true})
}
