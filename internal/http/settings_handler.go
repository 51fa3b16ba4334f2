package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"viewtracker/internal/settings"
)

// SettingsHandler reads and updates the tracker options.
type SettingsHandler struct {
	store *settings.Store
}

func NewSettingsHandler(store *settings.Store) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// SettingsIndexAction returns the current options and their accepted values.
func (h *SettingsHandler) SettingsIndexAction(ctx *cartridge.Context) error {
	opts, err := h.store.Options(ctx.UserContext())
	if err != nil {
		ctx.Logger.Error("Failed to load tracker options", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load settings",
		})
	}

	return ctx.JSON(fiber.Map{
		"options":           opts,
		"retention_choices": settings.RetentionChoices,
		"widget_count_min":  settings.MinWidgetCount,
		"widget_count_max":  settings.MaxWidgetCount,
	})
}

// SettingsUpdateAction applies a partial options update.
func (h *SettingsHandler) SettingsUpdateAction(ctx *cartridge.Context) error {
	var update settings.OptionsUpdate
	if err := ctx.BodyParser(&update); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request",
		})
	}

	opts, err := h.store.Update(ctx.UserContext(), update)
	var validationErr *settings.ValidationError
	if errors.As(err, &validationErr) {
		ctx.Logger.Warn("Invalid settings submitted", slog.String("field", validationErr.Field))
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"field":   validationErr.Field,
			"error":   validationErr.Error(),
		})
	}
	if err != nil {
		ctx.Logger.Error("Failed to update settings", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to update settings",
		})
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"options": opts,
	})
}

// RotateAPIKeyAction replaces the admin API key. The new key is only shown
// in this response.
func (h *SettingsHandler) RotateAPIKeyAction(ctx *cartridge.Context) error {
	key, err := h.store.GenerateAPIKey(ctx.UserContext())
	if err != nil {
		ctx.Logger.Error("Failed to rotate admin API key", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to rotate API key",
		})
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"api_key": key,
	})
}
