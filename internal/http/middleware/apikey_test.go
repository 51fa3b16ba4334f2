package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewtracker/internal/settings"
)

type stubVerifier struct {
	key string
	err error
}

func (s stubVerifier) VerifyAPIKey(_ context.Context, key string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return key == s.key, nil
}

func TestAPIKeyAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	cases := []struct {
		name     string
		verifier stubVerifier
		header   string
		status   int
	}{
		{"accepts the stored key", stubVerifier{key: "secret"}, "Bearer secret", fiber.StatusOK},
		{"rejects another key", stubVerifier{key: "secret"}, "Bearer other", fiber.StatusUnauthorized},
		{"rejects an empty key", stubVerifier{key: "secret"}, "Bearer ", fiber.StatusUnauthorized},
		{"rejects a missing header", stubVerifier{key: "secret"}, "", fiber.StatusUnauthorized},
		{"no key configured", stubVerifier{err: settings.ErrNoAPIKey}, "Bearer secret", fiber.StatusUnauthorized},
		{"verification failure", stubVerifier{err: errors.New("disk I/O error")}, "Bearer secret", fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", APIKeyAuth(tc.verifier, logger), func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			req := httptest.NewRequest("GET", "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
