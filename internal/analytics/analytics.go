// Package analytics answers read-only questions over the view counters and
// the detail log.
//
// The package is organized into focused files:
//   - analytics.go: Engine, result types and product filters
//   - totals.go: scalar counts over a date range
//   - devices.go: device breakdown
//   - daily.go: per-day series
//   - popular.go: most viewed products
//   - referrers.go: referrer sources
//   - summary.go: dashboard and per-product summaries
//   - export.go: CSV export of detail rows
package analytics

import (
	"log/slog"

	"gorm.io/gorm"

	"viewtracker/internal/timeframe"
)

// ProductViews pairs a product with a view count.
type ProductViews struct {
	ProductID uint  `json:"product_id"`
	Views     int64 `json:"views"`
}

// ProductFilter restricts product queries to pre-resolved product id sets.
// A product passes when it is in either set. An empty filter matches every
// product.
type ProductFilter struct {
	CategoryProducts []uint
	TagProducts      []uint
}

// IsEmpty reports whether the filter places no restriction.
func (f ProductFilter) IsEmpty() bool {
	return len(f.CategoryProducts) == 0 && len(f.TagProducts) == 0
}

func (f ProductFilter) scope(column string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case len(f.CategoryProducts) > 0 && len(f.TagProducts) > 0:
			return db.Where("("+column+" IN ? OR "+column+" IN ?)", f.CategoryProducts, f.TagProducts)
		case len(f.CategoryProducts) > 0:
			return db.Where(column+" IN ?", f.CategoryProducts)
		case len(f.TagProducts) > 0:
			return db.Where(column+" IN ?", f.TagProducts)
		default:
			return db
		}
	}
}

// Engine runs analytics queries.
type Engine struct {
	db       *gorm.DB
	logger   *slog.Logger
	shopHost string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithShopHost makes referrers from host count as internal navigation.
func WithShopHost(host string) EngineOption {
	return func(e *Engine) { e.shopHost = host }
}

func NewEngine(db *gorm.DB, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{db: db, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// inRange limits a product_views query to the calendar dates of r.
func inRange(r timeframe.DateRange) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("viewed_at >= ? AND viewed_at < ?", r.Lower(), r.Upper())
	}
}

func forProduct(productID *uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if productID == nil {
			return db
		}
		return db.Where("product_id = ?", *productID)
	}
}
