package analytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"viewtracker/internal/metrics"
	"viewtracker/internal/pkg/device"
	"viewtracker/internal/timeframe"
	"viewtracker/internal/views"
)

// DeviceCounts maps every device type to its view count. All four types are
// always present.
type DeviceCounts map[device.Type]int64

func newDeviceCounts() DeviceCounts {
	counts := make(DeviceCounts, len(device.AllTypes()))
	for _, t := range device.AllTypes() {
		counts[t] = 0
	}
	return counts
}

// Total sums the counts of every device type.
func (c DeviceCounts) Total() int64 {
	var total int64
	for _, n := range c {
		total += n
	}
	return total
}

// DeviceShare is one row of a device breakdown prepared for display.
type DeviceShare struct {
	Type    device.Type `json:"type"`
	Label   string      `json:"label"`
	Views   int64       `json:"views"`
	Percent float64     `json:"percent"`
}

var titleCaser = cases.Title(language.English)

// Shares returns the breakdown in device.AllTypes order with display labels
// and percentages rounded to one decimal.
func (c DeviceCounts) Shares() []DeviceShare {
	total := c.Total()
	shares := make([]DeviceShare, 0, len(c))
	for _, t := range device.AllTypes() {
		share := DeviceShare{Type: t, Label: titleCaser.String(string(t)), Views: c[t]}
		if total > 0 {
			share.Percent = float64(int64(float64(c[t])*1000/float64(total)+0.5)) / 10
		}
		shares = append(shares, share)
	}
	return shares
}

// DeviceBreakdown counts views within r per device type, optionally for a
// single product.
func (e *Engine) DeviceBreakdown(ctx context.Context, r timeframe.DateRange, productID *uint) (DeviceCounts, error) {
	counts := newDeviceCounts()
	if r.IsEmpty() {
		return counts, nil
	}
	defer metrics.ObserveQuery("device_breakdown", time.Now())

	var rows []struct {
		DeviceType string
		Count      int64
	}
	err := e.db.WithContext(ctx).
		Model(&views.ProductView{}).
		Select("device_type, COUNT(*) AS count").
		Scopes(inRange(r), forProduct(productID)).
		Group("device_type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching device breakdown: %w", err)
	}

	for _, row := range rows {
		t, ok := device.ParseType(row.DeviceType)
		if !ok {
			t = device.Unknown
		}
		counts[t] += row.Count
	}
	return counts, nil
}
