// Package seeder fills a database with synthetic product views so the
// dashboard and popular feeds have something to show.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"viewtracker/internal/pkg/clientip"
	"viewtracker/internal/pkg/device"
	"viewtracker/internal/views"
)

const insertBatchSize = 500

// Seeder generates product views.
type Seeder struct {
	DB        *gorm.DB
	Logger    *slog.Logger
	ViewCount int
	Products  int
	Days      int
	Now       func() time.Time

	rng *rand.Rand
}

// NewSeeder creates a seeder writing viewCount views spread over the last
// days days across products products.
func NewSeeder(db *gorm.DB, logger *slog.Logger, viewCount, products, days int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DB:        db,
		Logger:    logger,
		ViewCount: viewCount,
		Products:  max(products, 1),
		Days:      max(days, 1),
		Now:       time.Now,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Run inserts the detail rows and raises the matching counters. Product ids
// run from 1 to Products, with a few products drawing most of the views.
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	s.Logger.Info("Starting database seeding...",
		slog.Int("views", s.ViewCount),
		slog.Int("products", s.Products),
		slog.Int("days", s.Days))

	ipPool := generateIPPool(100)
	userAgents := getUserAgents()
	referrers := getReferrers()
	popularity := rand.NewZipf(s.rng, 1.2, 1, uint64(s.Products-1))
	now := s.Now().UTC()
	window := time.Duration(s.Days) * 24 * time.Hour

	counts := make(map[uint]int64)
	batch := make([]views.ProductView, 0, insertBatchSize)
	details := views.NewDetailStore(s.DB)
	counters := views.NewCounterStore(s.DB)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := sqlite.PerformWrite(s.Logger, s.DB.WithContext(ctx), func(tx *gorm.DB) error {
			return details.AppendBatch(tx, batch, insertBatchSize)
		})
		batch = batch[:0]
		return err
	}

	for i := 0; i < s.ViewCount; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		productID := uint(popularity.Uint64()) + 1
		userAgent := userAgents[s.rng.IntN(len(userAgents))]
		batch = append(batch, views.ProductView{
			ProductID:  productID,
			SessionID:  fmt.Sprintf("seed-%d", s.rng.IntN(max(s.ViewCount/3, 1))),
			IPAddress:  clientip.Anonymize(ipPool[s.rng.IntN(len(ipPool))]),
			UserAgent:  userAgent,
			DeviceType: device.Classify(userAgent),
			Referer:    referrers[s.rng.IntN(len(referrers))],
			ViewedAt:   now.Add(-time.Duration(s.rng.Int64N(int64(window)))),
		})
		counts[productID]++

		if len(batch) == insertBatchSize {
			if err := flush(); err != nil {
				return fmt.Errorf("failed to insert views: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		return fmt.Errorf("failed to insert views: %w", err)
	}

	err := sqlite.PerformWrite(s.Logger, s.DB.WithContext(ctx), func(tx *gorm.DB) error {
		for productID, n := range counts {
			if err := counters.Add(tx, productID, n, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update counters: %w", err)
	}

	s.Logger.Info("Seeding completed successfully",
		slog.Int("products_viewed", len(counts)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

func generateIPPool(count int) []string {
	ipPool := make(map[string]bool)
	var ips []string
	for len(ips) < count {
		ip := fmt.Sprintf("%d.%d.%d.%d", rand.IntN(223)+1, rand.IntN(256), rand.IntN(256), rand.IntN(256))
		if !ipPool[ip] {
			ipPool[ip] = true
			ips = append(ips, ip)
		}
	}
	return ips
}

func getUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 13; SM-X710) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"",
	}
}

func getReferrers() []string {
	return []string{
		"", // Direct visit
		"https://google.com",
		"https://bing.com",
		"https://duckduckgo.com",
		"https://facebook.com",
		"https://pinterest.com",
		"https://shop.example.com/category/shoes",
		"https://shop.example.com/search?q=boots&orderby=popularity",
	}
}
