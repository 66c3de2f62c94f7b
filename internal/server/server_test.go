package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, issuer, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": issuer,
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newAuthApp(s *Server) *fiber.App {
	app := fiber.New()
	app.Get("/protected", s.AuthRequired(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": c.Locals("userID")})
	})
	return app
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(new(MockPostRepository), new(MockUserRepository), &fakeObjectStore{}, &fakeDetector{}, nil)
	app := newAuthApp(s)

	tests := []struct {
		name           string
		authorization  string
		expectedStatus int
	}{
		{
			name:           "Missing Header",
			authorization:  "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Malformed Header",
			authorization:  "Token abc",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Wrong Secret",
			authorization:  "Bearer " + signToken(t, "other-secret", "snaptag-api", "user_1"),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Wrong Issuer",
			authorization:  "Bearer " + signToken(t, "test-secret", "someone-else", "user_1"),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Valid Token",
			authorization:  "Bearer " + signToken(t, "test-secret", "snaptag-api", "user_1"),
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestOptionalUserID(t *testing.T) {
	s := newTestServer(new(MockPostRepository), new(MockUserRepository), &fakeObjectStore{}, &fakeDetector{}, nil)

	app := fiber.New()
	var gotID string
	var gotOK bool
	app.Get("/peek", func(c *fiber.Ctx) error {
		gotID, gotOK = s.optionalUserID(c)
		return c.SendStatus(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/peek", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.False(t, gotOK)

	req = httptest.NewRequest(http.MethodGet, "/peek", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", "snaptag-api", "user_42"))
	resp, err = app.Test(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.True(t, gotOK)
	assert.Equal(t, "user_42", gotID)
}
