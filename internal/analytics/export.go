package analytics

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"viewtracker/internal/metrics"
	"viewtracker/internal/timeframe"
	"viewtracker/internal/views"
)

// ExportColumns is the header row of a CSV export.
var ExportColumns = []string{
	"id", "product_id", "user_id", "session_id", "ip_address",
	"device_type", "referer", "user_agent", "viewed_at",
}

// ExportCSV streams the detail rows viewed within r to w, oldest first. It
// returns the number of data rows written.
func (e *Engine) ExportCSV(ctx context.Context, w io.Writer, r timeframe.DateRange, productID *uint) (int, error) {
	defer metrics.ObserveQuery("export_csv", time.Now())

	out := csv.NewWriter(w)
	if err := out.Write(ExportColumns); err != nil {
		return 0, fmt.Errorf("failed to write csv header: %w", err)
	}
	if r.IsEmpty() {
		out.Flush()
		return 0, out.Error()
	}

	db := e.db.WithContext(ctx)
	rows, err := db.Model(&views.ProductView{}).
		Scopes(inRange(r), forProduct(productID)).
		Order("viewed_at ASC, id ASC").
		Rows()
	if err != nil {
		return 0, fmt.Errorf("error fetching views for export: %w", err)
	}
	defer rows.Close()

	written := 0
	for rows.Next() {
		var view views.ProductView
		if err := db.ScanRows(rows, &view); err != nil {
			return written, fmt.Errorf("error reading view for export: %w", err)
		}
		if err := out.Write(exportRecord(view)); err != nil {
			return written, fmt.Errorf("failed to write csv row: %w", err)
		}
		written++
	}
	if err := rows.Err(); err != nil {
		return written, fmt.Errorf("error iterating views for export: %w", err)
	}

	out.Flush()
	return written, out.Error()
}

func exportRecord(v views.ProductView) []string {
	return []string{
		strconv.FormatUint(uint64(v.ID), 10),
		strconv.FormatUint(uint64(v.ProductID), 10),
		strconv.FormatUint(uint64(v.UserID), 10),
		safeCell(v.SessionID),
		v.IPAddress,
		string(v.DeviceType),
		safeCell(v.Referer),
		safeCell(v.UserAgent),
		v.ViewedAt.UTC().Format(time.RFC3339),
	}
}

// safeCell keeps client supplied text from being evaluated as a spreadsheet formula.
func safeCell(value string) string {
	if value != "" && strings.ContainsRune("=+-@", rune(value[0])) {
		return "'" + value
	}
	return value
}
