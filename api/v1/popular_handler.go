package v1

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"viewtracker/internal/analytics"
	"viewtracker/internal/settings"
	"viewtracker/internal/timeframe"
	"viewtracker/internal/views"
)

// maxPopularDays caps the look-back window of the popular feed.
const maxPopularDays = 3650

// PopularHandler serves the popular products feed used by widgets and shortcodes.
type PopularHandler struct {
	engine       *analytics.Engine
	options      *settings.Store
	timeProvider timeframe.TimeProvider
}

func NewPopularHandler(engine *analytics.Engine, options *settings.Store, timeProvider timeframe.TimeProvider) *PopularHandler {
	return &PopularHandler{engine: engine, options: options, timeProvider: timeProvider}
}

// PopularProductsAction lists the most viewed products. days=0 (the default)
// ranks by all-time counters, otherwise by views over the last days days.
// Category and tag product sets narrow the ranking to their union.
func (h *PopularHandler) PopularProductsAction(ctx *cartridge.Context) error {
	opts, err := h.options.Options(ctx.UserContext())
	if err != nil {
		ctx.Logger.Warn("Failed to load tracker options, using defaults", slog.Any("error", err))
	}

	limit := clamp(ctx.QueryInt("limit", opts.WidgetCount), settings.MinWidgetCount, settings.MaxWidgetCount)
	days := clamp(ctx.QueryInt("days", 0), 0, maxPopularDays)
	filter := analytics.ProductFilter{
		CategoryProducts: parseIDList(ctx.Query("category_products")),
		TagProducts:      parseIDList(ctx.Query("tag_products")),
	}

	var products []analytics.ProductViews
	if days == 0 {
		products, err = h.engine.MostViewedAllTime(ctx.UserContext(), limit, filter)
	} else {
		r := timeframe.LastNDays(h.timeProvider.Now(time.UTC), days)
		products, err = h.engine.MostViewedInRange(ctx.UserContext(), r, limit, filter)
	}
	if err != nil {
		ctx.Logger.Error("Failed to query popular products", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to query popular products",
		})
	}

	return ctx.JSON(fiber.Map{
		"products":       products,
		"limit":          limit,
		"days":           days,
		"thumbnail_size": opts.ThumbnailSize,
	})
}

// parseIDList reads a comma separated list of product ids, skipping
// anything that is not a positive integer.
func parseIDList(raw string) []uint {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		if id := views.ParseProductID(part); id != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func clamp(value, lower, upper int) int {
	return max(lower, min(value, upper))
}
