package analytics_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"viewtracker/internal/analytics"
	"viewtracker/internal/pkg/device"
	"viewtracker/internal/testsupport"
	"viewtracker/internal/timeframe"
	"viewtracker/internal/views"
)

func at(value string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func day(value string) time.Time {
	t, err := time.Parse(timeframe.DateLayout, value)
	if err != nil {
		panic(err)
	}
	return t
}

// aprilRange covers 2024-04-10 through 2024-04-14.
var aprilRange = timeframe.DateRange{Start: day("2024-04-10"), End: day("2024-04-14")}

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	rows := []views.ProductView{
		{ProductID: 1, DeviceType: device.Mobile, ViewedAt: at("2024-04-10 09:00:00"), SessionID: "s1", Referer: "=HYPERLINK(\"x\")"},
		{ProductID: 1, DeviceType: device.Desktop, ViewedAt: at("2024-04-10 18:00:00"), SessionID: "s2"},
		{ProductID: 1, DeviceType: device.Desktop, ViewedAt: at("2024-04-12 08:15:00"), SessionID: "s3"},
		{ProductID: 2, DeviceType: device.Tablet, ViewedAt: at("2024-04-11 12:00:00")},
		{ProductID: 2, DeviceType: device.Unknown, ViewedAt: at("2024-04-12 12:00:00")},
		{ProductID: 3, DeviceType: device.Desktop, ViewedAt: at("2024-04-12 23:00:00")},
		{ProductID: 4, DeviceType: device.Desktop, ViewedAt: at("2024-03-01 10:00:00")},
		{ProductID: 5, DeviceType: device.Desktop, ViewedAt: at("2024-04-14 23:59:59")},
		{ProductID: 5, DeviceType: device.Mobile, ViewedAt: at("2024-04-15 00:00:00")},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	counters := []views.ProductCounter{
		{ProductID: 1, Views: 10, UpdatedAt: at("2024-04-15 00:00:00")},
		{ProductID: 2, Views: 10, UpdatedAt: at("2024-04-15 00:00:00")},
		{ProductID: 3, Views: 0, UpdatedAt: at("2024-04-15 00:00:00")},
		{ProductID: 6, Views: 4, UpdatedAt: at("2024-04-15 00:00:00")},
	}
	for i := range counters {
		require.NoError(t, db.Select("product_id", "views", "updated_at").Create(&counters[i]).Error)
	}
}

func setupEngine(t *testing.T) (*analytics.Engine, *gorm.DB) {
	t.Helper()
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)
	seed(t, db)
	return analytics.NewEngine(db, logger), db
}

func uintPtr(v uint) *uint { return &v }

func TestTotals(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	total, err := engine.TotalViewsInRange(ctx, aprilRange)
	require.NoError(t, err)
	assert.Equal(t, int64(7), total, "range is inclusive of the end date and excludes the next midnight")

	n, err := engine.ProductViewsInRange(ctx, 1, aprilRange)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = engine.ProductViewsInRange(ctx, 4, aprilRange)
	require.NoError(t, err)
	assert.Zero(t, n)

	single := timeframe.DateRange{Start: day("2024-04-15"), End: day("2024-04-15")}
	n, err = engine.ProductViewsInRange(ctx, 5, single)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeviceBreakdown(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	counts, err := engine.DeviceBreakdown(ctx, aprilRange, nil)
	require.NoError(t, err)
	assert.Len(t, counts, 4)
	assert.Equal(t, analytics.DeviceCounts{
		device.Desktop: 4,
		device.Mobile:  1,
		device.Tablet:  1,
		device.Unknown: 1,
	}, counts)

	total, err := engine.TotalViewsInRange(ctx, aprilRange)
	require.NoError(t, err)
	assert.Equal(t, total, counts.Total())

	counts, err = engine.DeviceBreakdown(ctx, aprilRange, uintPtr(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[device.Desktop])
	assert.Equal(t, int64(1), counts[device.Mobile])
	assert.Zero(t, counts[device.Tablet])
	assert.Len(t, counts, 4)

	shares := analytics.DeviceCounts{device.Desktop: 4, device.Mobile: 1, device.Tablet: 1, device.Unknown: 1}.Shares()
	require.Len(t, shares, 4)
	assert.Equal(t, device.Desktop, shares[0].Type)
	assert.Equal(t, "Desktop", shares[0].Label)
	assert.InDelta(t, 57.1, shares[0].Percent, 0.001)
	assert.InDelta(t, 14.3, shares[1].Percent, 0.001)
}

func TestDailyViews(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	daily, err := engine.DailyViews(ctx, aprilRange, nil)
	require.NoError(t, err)
	assert.Equal(t, []timeframe.DateStat{
		{Date: "2024-04-10", Count: 2},
		{Date: "2024-04-11", Count: 1},
		{Date: "2024-04-12", Count: 3},
		{Date: "2024-04-13", Count: 0},
		{Date: "2024-04-14", Count: 1},
	}, daily)

	daily, err = engine.DailyViews(ctx, aprilRange, uintPtr(2))
	require.NoError(t, err)
	require.Len(t, daily, aprilRange.Days())
	assert.Equal(t, int64(1), daily[1].Count)
	assert.Equal(t, int64(1), daily[2].Count)
	assert.Zero(t, daily[0].Count)
}

func TestMostViewed(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	t.Run("range ranking with id tie-break", func(t *testing.T) {
		top, err := engine.MostViewedInRange(ctx, aprilRange, 3, analytics.ProductFilter{})
		require.NoError(t, err)
		assert.Equal(t, []analytics.ProductViews{
			{ProductID: 1, Views: 3},
			{ProductID: 2, Views: 2},
			{ProductID: 3, Views: 1},
		}, top)
	})

	t.Run("category and tag sets are combined", func(t *testing.T) {
		filter := analytics.ProductFilter{CategoryProducts: []uint{2, 3}, TagProducts: []uint{5}}
		top, err := engine.MostViewedInRange(ctx, aprilRange, 10, filter)
		require.NoError(t, err)
		assert.Equal(t, []analytics.ProductViews{
			{ProductID: 2, Views: 2},
			{ProductID: 3, Views: 1},
			{ProductID: 5, Views: 1},
		}, top)

		top, err = engine.MostViewedInRange(ctx, aprilRange, 10, analytics.ProductFilter{TagProducts: []uint{1}})
		require.NoError(t, err)
		assert.Equal(t, []analytics.ProductViews{{ProductID: 1, Views: 3}}, top)
	})

	t.Run("all time reads counters and skips zero", func(t *testing.T) {
		top, err := engine.MostViewedAllTime(ctx, 10, analytics.ProductFilter{})
		require.NoError(t, err)
		assert.Equal(t, []analytics.ProductViews{
			{ProductID: 1, Views: 10},
			{ProductID: 2, Views: 10},
			{ProductID: 6, Views: 4},
		}, top)

		top, err = engine.MostViewedAllTime(ctx, 2, analytics.ProductFilter{})
		require.NoError(t, err)
		assert.Len(t, top, 2)

		top, err = engine.MostViewedAllTime(ctx, 5, analytics.ProductFilter{CategoryProducts: []uint{3, 6}})
		require.NoError(t, err)
		assert.Equal(t, []analytics.ProductViews{{ProductID: 6, Views: 4}}, top)
	})

	t.Run("non-positive limit yields nothing", func(t *testing.T) {
		top, err := engine.MostViewedInRange(ctx, aprilRange, 0, analytics.ProductFilter{})
		require.NoError(t, err)
		assert.Empty(t, top)

		top, err = engine.MostViewedAllTime(ctx, -1, analytics.ProductFilter{})
		require.NoError(t, err)
		assert.Empty(t, top)
	})
}

func TestInvertedRange(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()
	inverted := timeframe.DateRange{Start: day("2024-04-14"), End: day("2024-04-10")}

	total, err := engine.TotalViewsInRange(ctx, inverted)
	require.NoError(t, err)
	assert.Zero(t, total)

	daily, err := engine.DailyViews(ctx, inverted, nil)
	require.NoError(t, err)
	assert.Empty(t, daily)

	counts, err := engine.DeviceBreakdown(ctx, inverted, nil)
	require.NoError(t, err)
	assert.Len(t, counts, 4)
	assert.Zero(t, counts.Total())

	top, err := engine.MostViewedInRange(ctx, inverted, 5, analytics.ProductFilter{})
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestSummaries(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	summary, err := engine.Summary(ctx, aprilRange, 2)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-10", summary.StartDate)
	assert.Equal(t, "2024-04-14", summary.EndDate)
	assert.Equal(t, int64(7), summary.TotalViews)
	assert.Len(t, summary.Daily, 5)
	assert.Len(t, summary.DeviceShare, 4)
	assert.Equal(t, []analytics.ProductViews{{ProductID: 1, Views: 3}, {ProductID: 2, Views: 2}}, summary.TopProducts)

	product, err := engine.ProductSummary(ctx, 1, aprilRange)
	require.NoError(t, err)
	assert.Equal(t, uint(1), product.ProductID)
	assert.Equal(t, int64(10), product.AllTimeViews)
	assert.Equal(t, int64(3), product.ViewsInRange)
	assert.Equal(t, int64(2), product.Devices[device.Desktop])
	assert.Len(t, product.Daily, 5)
	assert.Equal(t, []analytics.ReferrerSource{{Source: "Direct", Views: 3}}, product.Referrers)

	unknown, err := engine.ProductSummary(ctx, 999, aprilRange)
	require.NoError(t, err)
	assert.Zero(t, unknown.AllTimeViews)
	assert.Zero(t, unknown.ViewsInRange)
}

func TestExportCSV(t *testing.T) {
	engine, _ := setupEngine(t)
	ctx := context.Background()

	t.Run("exports rows of one product", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := engine.ExportCSV(ctx, &buf, aprilRange, uintPtr(1))
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 4)
		assert.Equal(t, analytics.ExportColumns, records[0])
		assert.Equal(t, "1", records[1][1])
		assert.Equal(t, "s1", records[1][3])
		assert.Equal(t, "mobile", records[1][5])
		assert.Equal(t, "'=HYPERLINK(\"x\")", records[1][6])
		assert.Equal(t, "2024-04-10T09:00:00Z", records[1][8])
		assert.Equal(t, "2024-04-12T08:15:00Z", records[3][8])
	})

	t.Run("exports every product in range", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := engine.ExportCSV(ctx, &buf, aprilRange, nil)
		require.NoError(t, err)
		assert.Equal(t, 7, n)
	})

	t.Run("inverted range writes only the header", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := engine.ExportCSV(ctx, &buf, timeframe.DateRange{Start: day("2024-05-01"), End: day("2024-04-01")}, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})
}

func TestTopReferrers(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)
	engine := analytics.NewEngine(db, logger, analytics.WithShopHost("shop.example.com"))
	ctx := context.Background()

	referers := []string{
		"https://www.google.com/search?q=boots",
		"https://google.com/",
		"https://google.de/",
		"https://pinterest.com/pin/1",
		"https://shop.example.com/category/shoes",
		"",
		"",
	}
	for i, ref := range referers {
		row := views.ProductView{ProductID: uint(1 + i%2), DeviceType: device.Desktop, Referer: ref, ViewedAt: at("2024-05-02 10:00:00")}
		require.NoError(t, db.Create(&row).Error)
	}
	mayRange := timeframe.DateRange{Start: day("2024-05-01"), End: day("2024-05-03")}

	sources, err := engine.TopReferrers(ctx, mayRange, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []analytics.ReferrerSource{
		{Source: "Google", Views: 3},
		{Source: "Direct", Views: 2},
		{Source: "Internal", Views: 1},
		{Source: "Pinterest", Views: 1},
	}, sources)

	limited, err := engine.TopReferrers(ctx, mayRange, nil, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	// Product 2 holds the views at odd positions.
	product, err := engine.TopReferrers(ctx, mayRange, uintPtr(2), 10)
	require.NoError(t, err)
	assert.Equal(t, []analytics.ReferrerSource{
		{Source: "Direct", Views: 1},
		{Source: "Google", Views: 1},
		{Source: "Pinterest", Views: 1},
	}, product)

	none, err := engine.TopReferrers(ctx, aprilRange, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
