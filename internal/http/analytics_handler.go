package http

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"viewtracker/internal/analytics"
	"viewtracker/internal/settings"
	"viewtracker/internal/timeframe"
	"viewtracker/internal/views"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

// AnalyticsHandler serves the dashboard data.
type AnalyticsHandler struct {
	engine  *analytics.Engine
	options *settings.Store
	parser  *timeframe.DateRangeParser
}

func NewAnalyticsHandler(engine *analytics.Engine, options *settings.Store, parser *timeframe.DateRangeParser) *AnalyticsHandler {
	return &AnalyticsHandler{engine: engine, options: options, parser: parser}
}

func (h *AnalyticsHandler) dateRange(ctx *cartridge.Context) (timeframe.DateRange, error) {
	return h.parser.Parse(ctx.Query("start_date"), ctx.Query("end_date"))
}

func invalidDateRange(ctx *cartridge.Context, err error) error {
	ctx.Logger.Debug("Invalid date range", slog.Any("error", err))
	return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Invalid date range, expected YYYY-MM-DD",
	})
}

// SummaryAction returns totals, device split, daily series and top products
// for the requested range.
func (h *AnalyticsHandler) SummaryAction(ctx *cartridge.Context) error {
	r, err := h.dateRange(ctx)
	if err != nil {
		return invalidDateRange(ctx, err)
	}

	limit := ctx.QueryInt("limit", defaultTopLimit)
	limit = max(1, min(limit, maxTopLimit))

	summary, err := h.engine.Summary(ctx.UserContext(), r, limit)
	if err != nil {
		ctx.Logger.Error("Failed to build analytics summary", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load analytics",
		})
	}

	return ctx.JSON(fiber.Map{
		"summary": summary,
		"presets": timeframe.Presets(),
	})
}

// WidgetAction returns the all-time most viewed products shown on the admin
// dashboard widget.
func (h *AnalyticsHandler) WidgetAction(ctx *cartridge.Context) error {
	opts, err := h.options.Options(ctx.UserContext())
	if err != nil {
		ctx.Logger.Warn("Failed to load tracker options, using defaults", slog.Any("error", err))
	}

	products, err := h.engine.MostViewedAllTime(ctx.UserContext(), opts.WidgetCount, analytics.ProductFilter{})
	if err != nil {
		ctx.Logger.Error("Failed to query widget products", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load widget",
		})
	}

	return ctx.JSON(fiber.Map{
		"products":       products,
		"thumbnail_size": opts.ThumbnailSize,
	})
}

// ExportAction downloads the view details of the range as CSV, optionally
// restricted to one product.
func (h *AnalyticsHandler) ExportAction(ctx *cartridge.Context) error {
	r, err := h.dateRange(ctx)
	if err != nil {
		return invalidDateRange(ctx, err)
	}

	var productID *uint
	if id := views.ParseProductID(ctx.Query("product_id")); id != 0 {
		productID = &id
	}

	var buf bytes.Buffer
	rows, err := h.engine.ExportCSV(ctx.UserContext(), &buf, r, productID)
	if err != nil {
		ctx.Logger.Error("Failed to export product views", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export product views",
		})
	}

	ctx.Logger.Info("Exported product views",
		slog.Int("rows", rows),
		slog.String("start_date", r.StartDate()),
		slog.String("end_date", r.EndDate()))

	ctx.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	ctx.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="product-views-%s-%s.csv"`, r.StartDate(), r.EndDate()))
	return ctx.Send(buf.Bytes())
}

// ProductAnalyticsAction returns the analytics of a single product.
func (h *AnalyticsHandler) ProductAnalyticsAction(ctx *cartridge.Context) error {
	productID := views.ParseProductID(ctx.Params("id"))
	if productID == 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid product id",
		})
	}

	r, err := h.dateRange(ctx)
	if err != nil {
		return invalidDateRange(ctx, err)
	}

	summary, err := h.engine.ProductSummary(ctx.UserContext(), productID, r)
	if err != nil {
		ctx.Logger.Error("Failed to build product analytics",
			slog.Uint64("product_id", uint64(productID)),
			slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load product analytics",
		})
	}

	return ctx.JSON(summary)
}
