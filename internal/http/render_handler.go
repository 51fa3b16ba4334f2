package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"

	"viewtracker/internal/pkg/clientip"
	"viewtracker/internal/settings"
	"viewtracker/internal/tracking"
	"viewtracker/internal/views"
)

// Render modes reported to the storefront.
const (
	ModeAjax   = "ajax"
	ModeDirect = "direct"
)

// RenderParams describes a product page being rendered by the storefront.
type RenderParams struct {
	ProductID uint   `json:"product_id"`
	UserID    uint   `json:"user_id"`
	IsAdmin   bool   `json:"is_admin"`
	UserAgent string `json:"user_agent"`
	Referer   string `json:"referer"`
	ClientIP  string `json:"client_ip"`
}

// RenderHandler is called by the storefront while it renders a product page.
type RenderHandler struct {
	recorder *views.Recorder
	tokens   *tracking.Issuer
	options  *settings.Store
	sessions *session.Store
}

func NewRenderHandler(recorder *views.Recorder, tokens *tracking.Issuer, options *settings.Store, sessions *session.Store) *RenderHandler {
	return &RenderHandler{recorder: recorder, tokens: tokens, options: options, sessions: sessions}
}

// RenderAction either hands the storefront a tracking token for the browser
// to report the view asynchronously, or records the view right away when
// ajax tracking is off. The visitor session cookie is expected to be
// forwarded by the storefront, and any new one must be passed back.
func (h *RenderHandler) RenderAction(ctx *cartridge.Context) error {
	var params RenderParams
	if err := ctx.BodyParser(&params); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request",
		})
	}

	opts, err := h.options.Options(ctx.UserContext())
	if err != nil {
		ctx.Logger.Warn("Failed to load tracker options, using defaults", slog.Any("error", err))
	}

	if opts.AjaxTracking {
		return h.renderAjax(ctx, params)
	}
	return h.renderDirect(ctx, params)
}

func (h *RenderHandler) renderAjax(ctx *cartridge.Context, params RenderParams) error {
	if params.ProductID == 0 {
		return ctx.JSON(fiber.Map{"success": true, "mode": ModeAjax, "recorded": false})
	}

	token, err := h.tokens.Issue(params.ProductID, params.UserID, params.IsAdmin)
	if err != nil {
		ctx.Logger.Error("Failed to issue tracking token",
			slog.Uint64("product_id", uint64(params.ProductID)),
			slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false})
	}

	return ctx.JSON(fiber.Map{
		"success":    true,
		"mode":       ModeAjax,
		"product_id": params.ProductID,
		"token":      token,
		"endpoint":   ctx.BaseURL() + "/x/api/v1/views",
		"script":     ctx.BaseURL() + "/y/api/v1/tracker.js",
	})
}

func (h *RenderHandler) renderDirect(ctx *cartridge.Context, params RenderParams) error {
	sess, err := h.sessions.Get(ctx.Ctx)
	if err != nil {
		ctx.Logger.Error("Failed to load visitor session", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false})
	}

	ip, _ := clientip.Normalize(params.ClientIP)
	err = h.recorder.RecordView(ctx.UserContext(), params.ProductID, views.ViewContext{
		UserID:    params.UserID,
		IsAdmin:   params.IsAdmin,
		SessionID: sess.ID(),
		Session:   sess,
		UserAgent: params.UserAgent,
		Referer:   params.Referer,
		ClientIP:  ip,
	})

	var storageErr *views.StorageError
	if errors.As(err, &storageErr) {
		status := fiber.StatusInternalServerError
		if sqlite.IsBusyError(err) {
			status = 599
		}
		return ctx.Status(status).JSON(fiber.Map{"success": false})
	}

	if saveErr := sess.Save(); saveErr != nil {
		ctx.Logger.Warn("Failed to save visitor session", slog.Any("error", saveErr))
	}

	return ctx.JSON(fiber.Map{
		"success":    true,
		"mode":       ModeDirect,
		"product_id": params.ProductID,
		"recorded":   err == nil,
		"session_id": sess.ID(),
	})
}
