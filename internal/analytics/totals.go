package analytics

import (
	"context"
	"fmt"
	"time"

	"viewtracker/internal/metrics"
	"viewtracker/internal/timeframe"
	"viewtracker/internal/views"
)

// TotalViewsInRange counts detail rows viewed within r.
func (e *Engine) TotalViewsInRange(ctx context.Context, r timeframe.DateRange) (int64, error) {
	return e.countInRange(ctx, "total_views", r, nil)
}

// ProductViewsInRange counts detail rows of productID viewed within r.
func (e *Engine) ProductViewsInRange(ctx context.Context, productID uint, r timeframe.DateRange) (int64, error) {
	return e.countInRange(ctx, "product_views", r, &productID)
}

func (e *Engine) countInRange(ctx context.Context, query string, r timeframe.DateRange, productID *uint) (int64, error) {
	if r.IsEmpty() {
		return 0, nil
	}
	defer metrics.ObserveQuery(query, time.Now())

	var count int64
	err := e.db.WithContext(ctx).
		Model(&views.ProductView{}).
		Scopes(inRange(r), forProduct(productID)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("error counting views in range: %w", err)
	}
	return count, nil
}
