package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"viewtracker/internal/metrics"
	"viewtracker/internal/pkg/referrers"
	"viewtracker/internal/timeframe"
	"viewtracker/internal/views"
)

// ReferrerSource is the number of views that arrived from one source.
type ReferrerSource struct {
	Source string `json:"source"`
	Views  int64  `json:"views"`
}

// TopReferrers groups views within r by referrer source, highest first, ties
// broken by name. Raw referers are folded into display names before ranking,
// so google.com and www.google.com land in the same row.
func (e *Engine) TopReferrers(ctx context.Context, r timeframe.DateRange, productID *uint, limit int) ([]ReferrerSource, error) {
	if limit <= 0 || r.IsEmpty() {
		return []ReferrerSource{}, nil
	}
	defer metrics.ObserveQuery("top_referrers", time.Now())

	var rows []struct {
		Referer string
		Count   int64
	}
	err := e.db.WithContext(ctx).
		Model(&views.ProductView{}).
		Select("referer, COUNT(*) AS count").
		Scopes(inRange(r), forProduct(productID)).
		Group("referer").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching referrers: %w", err)
	}

	bySource := make(map[string]int64)
	for _, row := range rows {
		bySource[referrers.Source(row.Referer, e.shopHost)] += row.Count
	}

	sources := make([]ReferrerSource, 0, len(bySource))
	for source, n := range bySource {
		sources = append(sources, ReferrerSource{Source: source, Views: n})
	}
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Views != sources[j].Views {
			return sources[i].Views > sources[j].Views
		}
		return sources[i].Source < sources[j].Source
	})

	if len(sources) > limit {
		sources = sources[:limit]
	}
	return sources, nil
}
