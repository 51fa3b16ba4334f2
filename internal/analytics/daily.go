package analytics

import (
	"context"
	"fmt"
	"time"

	"viewtracker/internal/metrics"
	"viewtracker/internal/timeframe"
	"viewtracker/internal/views"
)

// DailyViews returns one entry per calendar date of r in ascending order,
// with zero for dates without views.
func (e *Engine) DailyViews(ctx context.Context, r timeframe.DateRange, productID *uint) ([]timeframe.DateStat, error) {
	if r.IsEmpty() {
		return []timeframe.DateStat{}, nil
	}
	defer metrics.ObserveQuery("daily_views", time.Now())

	var stats []timeframe.DateStat
	err := e.db.WithContext(ctx).
		Model(&views.ProductView{}).
		Select("strftime('%Y-%m-%d', viewed_at) AS date, COUNT(*) AS count").
		Scopes(inRange(r), forProduct(productID)).
		Group("date").
		Order("date ASC").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching daily views: %w", err)
	}

	return timeframe.FillDaily(r, stats), nil
}
