package analytics

import (
	"context"
	"fmt"
	"time"

	"viewtracker/internal/metrics"
	"viewtracker/internal/timeframe"
	"viewtracker/internal/views"
)

// MostViewedInRange ranks products by views within r, highest first, ties
// broken by ascending product id.
func (e *Engine) MostViewedInRange(ctx context.Context, r timeframe.DateRange, limit int, filter ProductFilter) ([]ProductViews, error) {
	if limit <= 0 || r.IsEmpty() {
		return []ProductViews{}, nil
	}
	defer metrics.ObserveQuery("most_viewed_range", time.Now())

	results := []ProductViews{}
	err := e.db.WithContext(ctx).
		Model(&views.ProductView{}).
		Select("product_id, COUNT(*) AS views").
		Scopes(inRange(r), filter.scope("product_id")).
		Group("product_id").
		Order("views DESC, product_id ASC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching most viewed products: %w", err)
	}
	return results, nil
}

// MostViewedAllTime ranks products by their all-time counter. Products with
// no views are left out.
func (e *Engine) MostViewedAllTime(ctx context.Context, limit int, filter ProductFilter) ([]ProductViews, error) {
	if limit <= 0 {
		return []ProductViews{}, nil
	}
	defer metrics.ObserveQuery("most_viewed_all_time", time.Now())

	results := []ProductViews{}
	err := e.db.WithContext(ctx).
		Model(&views.ProductCounter{}).
		Select("product_id, views").
		Where("views > ?", 0).
		Scopes(filter.scope("product_id")).
		Order("views DESC, product_id ASC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching all-time most viewed products: %w", err)
	}
	return results, nil
}
