package v1

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"

	"viewtracker/internal/pkg/clientip"
	"viewtracker/internal/tracking"
	"viewtracker/internal/views"
)

const (
	errInvalidRequest = "Invalid request"
	errInvalidToken   = "Invalid tracking token"
)

// statusDatabaseBusy reports a locked database to the tracking script, which
// may retry later.
const statusDatabaseBusy = 599

// RecordViewParams is the body the tracking script posts.
type RecordViewParams struct {
	ProductID json.Number `json:"product_id"`
	Token     string      `json:"token"`
}

// ViewsHandler serves the browser side of view tracking.
type ViewsHandler struct {
	recorder *views.Recorder
	tokens   *tracking.Issuer
	sessions *session.Store
}

func NewViewsHandler(recorder *views.Recorder, tokens *tracking.Issuer, sessions *session.Store) *ViewsHandler {
	return &ViewsHandler{recorder: recorder, tokens: tokens, sessions: sessions}
}

// RecordViewAction records a view announced by the tracking script. The
// caller identity comes from the signed token issued at render time; the
// browser only proves it rendered that product.
func (h *ViewsHandler) RecordViewAction(ctx *cartridge.Context) error {
	productID, token, err := parseRecordViewParams(ctx.Ctx)
	if err != nil {
		ctx.Logger.Debug("Failed to parse view request", slog.Any("error", err))
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   errInvalidRequest,
		})
	}

	claims, err := h.tokens.Verify(token)
	if err != nil {
		ctx.Logger.Debug("Rejected tracking token", slog.Any("error", err))
		return ctx.Status(http.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   errInvalidToken,
		})
	}
	if productID != claims.ProductID {
		ctx.Logger.Debug("Tracking token issued for another product",
			slog.Uint64("product_id", uint64(productID)),
			slog.Uint64("token_product_id", uint64(claims.ProductID)))
		return ctx.Status(http.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   errInvalidToken,
		})
	}

	sess, err := h.sessions.Get(ctx.Ctx)
	if err != nil {
		ctx.Logger.Error("Failed to load visitor session", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"success": false})
	}

	err = h.recorder.RecordView(ctx.UserContext(), productID, views.ViewContext{
		UserID:    claims.UserID,
		IsAdmin:   claims.IsAdmin,
		SessionID: sess.ID(),
		Session:   sess,
		UserAgent: ctx.Get("User-Agent"),
		Referer:   ctx.Get("Referer"),
		ClientIP:  clientip.FromRequest(ctx.Ctx),
	})
	if status, failed := recordViewFailure(err); failed {
		return ctx.Status(status).JSON(fiber.Map{"success": false})
	}

	if saveErr := sess.Save(); saveErr != nil {
		ctx.Logger.Warn("Failed to save visitor session", slog.Any("error", saveErr))
	}

	return ctx.JSON(fiber.Map{
		"success":  true,
		"recorded": err == nil,
	})
}

// ProductViewsAction returns the all-time view count of a product.
func (h *ViewsHandler) ProductViewsAction(ctx *cartridge.Context) error {
	productID := views.ParseProductID(ctx.Params("id"))
	if productID == 0 {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid product id",
		})
	}

	count, err := h.recorder.Views(ctx.UserContext(), productID)
	if err != nil {
		ctx.Logger.Error("Failed to read product views",
			slog.Uint64("product_id", uint64(productID)),
			slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read product views",
		})
	}

	return ctx.JSON(fiber.Map{
		"product_id": productID,
		"views":      count,
	})
}

// maxBulkProducts bounds the ids of one bulk views request, a page of the
// storefront's product list.
const maxBulkProducts = 100

// BulkViewsAction returns the all-time views of the products listed in ids,
// zero for products never viewed. With sort=views the most viewed come
// first; otherwise the request order is kept.
func (h *ViewsHandler) BulkViewsAction(ctx *cartridge.Context) error {
	ids := uniqueIDs(parseIDList(ctx.Query("ids")))
	if len(ids) == 0 {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "ids must list at least one product id",
		})
	}
	if len(ids) > maxBulkProducts {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("at most %d product ids per request", maxBulkProducts),
		})
	}

	counts, err := h.recorder.ViewsOf(ctx.UserContext(), ids)
	if err != nil {
		ctx.Logger.Error("Failed to read product views",
			slog.Int("products", len(ids)),
			slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read product views",
		})
	}

	if ctx.Query("sort") == "views" {
		slices.SortStableFunc(counts, func(a, b views.ProductCount) int {
			return cmp.Compare(b.Views, a.Views)
		})
	}

	return ctx.JSON(fiber.Map{"products": counts})
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	unique := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}

// parseRecordViewParams accepts a JSON body or a form, the latter being what
// the tracking script sends to avoid a preflight.
func parseRecordViewParams(c *fiber.Ctx) (uint, string, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		var params RecordViewParams
		if err := json.Unmarshal(c.Body(), &params); err != nil {
			return 0, "", err
		}
		return views.ParseProductID(params.ProductID.String()), strings.TrimSpace(params.Token), nil
	}
	return views.ParseProductID(c.FormValue("product_id")), strings.TrimSpace(c.FormValue("token")), nil
}

// recordViewFailure maps a RecordView error to an HTTP status. Policy
// rejections and unknown ids are not failures: the view is simply not counted.
func recordViewFailure(err error) (int, bool) {
	switch {
	case err == nil,
		errors.Is(err, views.ErrRejected),
		errors.Is(err, views.ErrInvalidProductID):
		return 0, false
	case sqlite.IsBusyError(err):
		return statusDatabaseBusy, true
	default:
		return http.StatusInternalServerError, true
	}
}
