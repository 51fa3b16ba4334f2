package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"viewtracker/internal/settings"
)

// APIKeyVerifier checks an admin API key.
type APIKeyVerifier interface {
	VerifyAPIKey(ctx context.Context, key string) (bool, error)
}

// APIKeyAuth middleware validates the admin API key of server-to-server endpoints.
// Expects: Authorization: Bearer <api_key>
func APIKeyAuth(verifier APIKeyVerifier, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Authorization header",
			})
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid Authorization header format. Expected: Bearer <api_key>",
			})
		}

		providedKey := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if providedKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "API key is empty",
			})
		}

		ok, err := verifier.VerifyAPIKey(c.UserContext(), providedKey)
		if errors.Is(err, settings.ErrNoAPIKey) {
			logger.Warn("Admin API key not configured")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Admin API key not configured. Generate one with vtctl generate-api-key.",
			})
		}
		if err != nil {
			logger.Error("Failed to verify admin API key", slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to verify API key",
			})
		}
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		}

		return c.Next()
	}
}
