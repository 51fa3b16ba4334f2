// Package timeframe handles the calendar date ranges analytics are queried over.
// Dates are UTC calendar days; time of day never matters.
package timeframe

import (
	"time"
)

// DateLayout is the wire and storage format of a calendar day.
const DateLayout = "2006-01-02"

// DateStat is a per-day count.
type DateStat struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider is the default implementation that uses the system clock
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// FixedTimeProvider always reports the same instant. Used by tests and by
// callers that must evaluate several ranges against one "now".
type FixedTimeProvider struct {
	Time time.Time
}

func (p *FixedTimeProvider) Now(loc *time.Location) time.Time {
	return p.Time.In(loc)
}

// DateRange is an inclusive range of calendar days. A range whose Start is
// after its End is empty.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Day truncates t to midnight UTC of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDateRange builds a range covering the calendar days of start and end.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Day(start), End: Day(end)}
}

// LastNDays returns the range from n days before now up to and including today.
func LastNDays(now time.Time, n int) DateRange {
	today := Day(now)
	return DateRange{Start: today.AddDate(0, 0, -n), End: today}
}

// IsEmpty reports whether the range covers no day at all.
func (r DateRange) IsEmpty() bool {
	return r.Start.After(r.End)
}

// Days returns the number of calendar days in the range.
func (r DateRange) Days() int {
	if r.IsEmpty() {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Lower returns the first instant inside the range.
func (r DateRange) Lower() time.Time {
	return r.Start
}

// Upper returns the first instant after the range (exclusive bound).
func (r DateRange) Upper() time.Time {
	return r.End.AddDate(0, 0, 1)
}

// StartDate formats the first day of the range.
func (r DateRange) StartDate() string {
	return r.Start.Format(DateLayout)
}

// EndDate formats the last day of the range.
func (r DateRange) EndDate() string {
	return r.End.Format(DateLayout)
}

// Dates lists every day of the range in ascending order.
func (r DateRange) Dates() []string {
	dates := make([]string, 0, r.Days())
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates
}

// FillDaily densifies sparse per-day counts into one entry per day of r, in
// ascending order, with 0 for days missing from stats. Stats outside the
// range are ignored.
func FillDaily(r DateRange, stats []DateStat) []DateStat {
	counts := make(map[string]int64, len(stats))
	for _, stat := range stats {
		counts[stat.Date] += stat.Count
	}

	dates := r.Dates()
	points := make([]DateStat, len(dates))
	for i, date := range dates {
		points[i] = DateStat{Date: date, Count: counts[date]}
	}
	return points
}
