package analytics

import (
	"context"
	"fmt"
	"log/slog"

	"viewtracker/internal/pkg/async"
	"viewtracker/internal/timeframe"
)

const maxReferrerSources = 10

// Summary is the analytics dashboard payload for one date range.
type Summary struct {
	StartDate   string               `json:"start_date"`
	EndDate     string               `json:"end_date"`
	TotalViews  int64                `json:"total_views"`
	Devices     DeviceCounts         `json:"devices"`
	DeviceShare []DeviceShare        `json:"device_share"`
	Daily       []timeframe.DateStat `json:"daily"`
	TopProducts []ProductViews       `json:"top_products"`
	Referrers   []ReferrerSource     `json:"referrers"`
}

// ProductSummary is the analytics payload of a single product.
type ProductSummary struct {
	ProductID    uint                 `json:"product_id"`
	StartDate    string               `json:"start_date"`
	EndDate      string               `json:"end_date"`
	AllTimeViews int64                `json:"all_time_views"`
	ViewsInRange int64                `json:"views_in_range"`
	Devices      DeviceCounts         `json:"devices"`
	DeviceShare  []DeviceShare        `json:"device_share"`
	Daily        []timeframe.DateStat `json:"daily"`
	Referrers    []ReferrerSource     `json:"referrers"`
}

// Summary runs the dashboard queries for r concurrently.
func (e *Engine) Summary(ctx context.Context, r timeframe.DateRange, topLimit int) (*Summary, error) {
	tasks := []async.Task{
		{Name: "total", Execute: func() (interface{}, error) { return e.TotalViewsInRange(ctx, r) }},
		{Name: "devices", Execute: func() (interface{}, error) { return e.DeviceBreakdown(ctx, r, nil) }},
		{Name: "daily", Execute: func() (interface{}, error) { return e.DailyViews(ctx, r, nil) }},
		{Name: "top", Execute: func() (interface{}, error) { return e.MostViewedInRange(ctx, r, topLimit, ProductFilter{}) }},
		{Name: "referrers", Execute: func() (interface{}, error) { return e.TopReferrers(ctx, r, nil, maxReferrerSources) }},
	}

	results := async.NewPool(len(tasks)).Execute(ctx, tasks)
	if err := e.firstError(results, tasks); err != nil {
		return nil, err
	}

	devices := results["devices"].Data.(DeviceCounts)
	return &Summary{
		StartDate:   r.StartDate(),
		EndDate:     r.EndDate(),
		TotalViews:  results["total"].Data.(int64),
		Devices:     devices,
		DeviceShare: devices.Shares(),
		Daily:       results["daily"].Data.([]timeframe.DateStat),
		TopProducts: results["top"].Data.([]ProductViews),
		Referrers:   results["referrers"].Data.([]ReferrerSource),
	}, nil
}

// ProductSummary runs the per-product queries for r concurrently.
func (e *Engine) ProductSummary(ctx context.Context, productID uint, r timeframe.DateRange) (*ProductSummary, error) {
	id := productID
	tasks := []async.Task{
		{Name: "all_time", Execute: func() (interface{}, error) { return e.allTimeViews(ctx, productID) }},
		{Name: "in_range", Execute: func() (interface{}, error) { return e.ProductViewsInRange(ctx, productID, r) }},
		{Name: "devices", Execute: func() (interface{}, error) { return e.DeviceBreakdown(ctx, r, &id) }},
		{Name: "daily", Execute: func() (interface{}, error) { return e.DailyViews(ctx, r, &id) }},
		{Name: "referrers", Execute: func() (interface{}, error) { return e.TopReferrers(ctx, r, &id, maxReferrerSources) }},
	}

	results := async.NewPool(len(tasks)).Execute(ctx, tasks)
	if err := e.firstError(results, tasks); err != nil {
		return nil, err
	}

	devices := results["devices"].Data.(DeviceCounts)
	return &ProductSummary{
		ProductID:    productID,
		StartDate:    r.StartDate(),
		EndDate:      r.EndDate(),
		AllTimeViews: results["all_time"].Data.(int64),
		ViewsInRange: results["in_range"].Data.(int64),
		Devices:      devices,
		DeviceShare:  devices.Shares(),
		Daily:        results["daily"].Data.([]timeframe.DateStat),
		Referrers:    results["referrers"].Data.([]ReferrerSource),
	}, nil
}

func (e *Engine) allTimeViews(ctx context.Context, productID uint) (int64, error) {
	var total int64
	err := e.db.WithContext(ctx).
		Table("product_counters").
		Select("views").
		Where("product_id = ?", productID).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("error fetching all-time views: %w", err)
	}
	return total, nil
}

// firstError returns the first failed or missing task result in task order.
func (e *Engine) firstError(results map[string]async.Result, tasks []async.Task) error {
	for _, task := range tasks {
		result, ok := results[task.Name]
		if !ok {
			return fmt.Errorf("analytics query %s did not complete", task.Name)
		}
		if result.Err != nil {
			e.logger.Error("Analytics query failed", slog.String("query", task.Name), slog.Any("error", result.Err))
			return result.Err
		}
	}
	return nil
}
