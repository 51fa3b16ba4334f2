package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"viewtracker/internal/views"
)

// ProductsHandler exposes the view reset operations to the storefront.
type ProductsHandler struct {
	recorder *views.Recorder
}

func NewProductsHandler(recorder *views.Recorder) *ProductsHandler {
	return &ProductsHandler{recorder: recorder}
}

// ResetProductAction zeroes one product's views.
func (h *ProductsHandler) ResetProductAction(ctx *cartridge.Context) error {
	productID := views.ParseProductID(ctx.Params("id"))

	if err := h.recorder.ResetProductViews(ctx.UserContext(), productID); err != nil {
		return resetFailed(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success":    true,
		"product_id": productID,
	})
}

// ProductUpdatedAction is called when the storefront saves a product. Views
// are reset only when the reset-on-update option is on.
func (h *ProductsHandler) ProductUpdatedAction(ctx *cartridge.Context) error {
	productID := views.ParseProductID(ctx.Params("id"))
	if productID == 0 {
		return resetFailed(ctx, views.ErrInvalidProductID)
	}

	reset, err := h.recorder.HandleProductUpdated(ctx.UserContext(), productID)
	if err != nil {
		return resetFailed(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success":    true,
		"product_id": productID,
		"reset":      reset,
	})
}

// ResetAllAction wipes every counter and detail row. The caller must confirm
// with confirm=yes.
func (h *ProductsHandler) ResetAllAction(ctx *cartridge.Context) error {
	var body struct {
		Confirm string `json:"confirm" form:"confirm"`
	}
	_ = ctx.BodyParser(&body)
	if body.Confirm == "" {
		body.Confirm = ctx.Query("confirm")
	}
	if body.Confirm != "yes" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Resetting all views requires confirm=yes",
		})
	}

	if err := h.recorder.ResetAllViews(ctx.UserContext()); err != nil {
		return resetFailed(ctx, err)
	}

	return ctx.JSON(fiber.Map{"success": true})
}

func resetFailed(ctx *cartridge.Context, err error) error {
	if errors.Is(err, views.ErrInvalidProductID) {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid product id",
		})
	}

	ctx.Logger.Error("Failed to reset views", slog.Any("error", err))
	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   "Failed to reset views",
	})
}
