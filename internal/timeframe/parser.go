package timeframe

import (
	"fmt"
	"strings"
	"time"
)

// DefaultRangeDays is how far back a range reaches when no start date is given.
const DefaultRangeDays = 30

// Preset is a quick range offered next to the date pickers.
type Preset struct {
	Label string `json:"label"`
	Days  int    `json:"days"`
}

// Presets returns the quick ranges in display order.
func Presets() []Preset {
	return []Preset{
		{Label: "Last 7 days", Days: 7},
		{Label: "Last 30 days", Days: 30},
		{Label: "Last 90 days", Days: 90},
	}
}

type DateRangeParser struct {
	timeProvider TimeProvider
}

func NewDateRangeParser(timeProvider ...TimeProvider) *DateRangeParser {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}

	return &DateRangeParser{
		timeProvider: provider,
	}
}

// Parse reads a start_date/end_date pair in YYYY-MM-DD form. A missing end
// date means today and a missing start date means DefaultRangeDays before the
// end. A start after the end is not an error: the range is simply empty.
func (p *DateRangeParser) Parse(startDate, endDate string) (DateRange, error) {
	now := p.timeProvider.Now(time.UTC)

	end := Day(now)
	if s := strings.TrimSpace(endDate); s != "" {
		parsed, err := time.ParseInLocation(DateLayout, s, time.UTC)
		if err != nil {
			return DateRange{}, fmt.Errorf("invalid end date %q: %w", s, err)
		}
		end = parsed
	}

	start := end.AddDate(0, 0, -DefaultRangeDays)
	if s := strings.TrimSpace(startDate); s != "" {
		parsed, err := time.ParseInLocation(DateLayout, s, time.UTC)
		if err != nil {
			return DateRange{}, fmt.Errorf("invalid start date %q: %w", s, err)
		}
		start = parsed
	}

	return DateRange{Start: start, End: end}, nil
}

// LastNDays returns the range ending today and starting n days ago.
func (p *DateRangeParser) LastNDays(n int) DateRange {
	return LastNDays(p.timeProvider.Now(time.UTC), n)
}
