package timeframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDateRange(t *testing.T) {
	t.Run("inclusive day count", func(t *testing.T) {
		r := DateRange{Start: date("2024-01-01"), End: date("2024-01-31")}
		assert.Equal(t, 31, r.Days())
		assert.False(t, r.IsEmpty())
		assert.Equal(t, "2024-01-01", r.StartDate())
		assert.Equal(t, "2024-01-31", r.EndDate())
		assert.Equal(t, date("2024-02-01"), r.Upper())
	})

	t.Run("single day", func(t *testing.T) {
		r := DateRange{Start: date("2024-03-10"), End: date("2024-03-10")}
		assert.Equal(t, 1, r.Days())
		assert.Equal(t, []string{"2024-03-10"}, r.Dates())
	})

	t.Run("start after end is empty", func(t *testing.T) {
		r := DateRange{Start: date("2024-03-10"), End: date("2024-03-01")}
		assert.True(t, r.IsEmpty())
		assert.Equal(t, 0, r.Days())
		assert.Empty(t, r.Dates())
	})

	t.Run("leap day is counted", func(t *testing.T) {
		r := DateRange{Start: date("2024-02-27"), End: date("2024-03-01")}
		assert.Equal(t, []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01"}, r.Dates())
	})

	t.Run("NewDateRange drops time of day", func(t *testing.T) {
		loc := time.FixedZone("UTC+2", 2*60*60)
		r := NewDateRange(
			time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC),
			time.Date(2024, 5, 3, 1, 0, 0, 0, loc), // 2024-05-02 23:00 UTC
		)
		assert.Equal(t, "2024-05-01", r.StartDate())
		assert.Equal(t, "2024-05-02", r.EndDate())
	})

	t.Run("LastNDays reaches back n days", func(t *testing.T) {
		r := LastNDays(time.Date(2024, 6, 30, 15, 4, 5, 0, time.UTC), 7)
		assert.Equal(t, "2024-06-23", r.StartDate())
		assert.Equal(t, "2024-06-30", r.EndDate())
		assert.Equal(t, 8, r.Days())
	})
}

func TestFillDaily(t *testing.T) {
	r := DateRange{Start: date("2024-01-01"), End: date("2024-01-05")}

	t.Run("fills gaps with zero", func(t *testing.T) {
		points := FillDaily(r, []DateStat{
			{Date: "2024-01-02", Count: 3},
			{Date: "2024-01-05", Count: 1},
		})

		require.Len(t, points, 5)
		assert.Equal(t, []DateStat{
			{Date: "2024-01-01", Count: 0},
			{Date: "2024-01-02", Count: 3},
			{Date: "2024-01-03", Count: 0},
			{Date: "2024-01-04", Count: 0},
			{Date: "2024-01-05", Count: 1},
		}, points)
	})

	t.Run("ignores days outside the range", func(t *testing.T) {
		points := FillDaily(r, []DateStat{{Date: "2023-12-31", Count: 9}})
		require.Len(t, points, 5)
		for _, p := range points {
			assert.Zero(t, p.Count)
		}
	})

	t.Run("empty range yields no points", func(t *testing.T) {
		empty := DateRange{Start: date("2024-01-05"), End: date("2024-01-01")}
		assert.Empty(t, FillDaily(empty, []DateStat{{Date: "2024-01-02", Count: 1}}))
	})

	t.Run("length matches day count for long ranges", func(t *testing.T) {
		year := DateRange{Start: date("2023-01-01"), End: date("2023-12-31")}
		points := FillDaily(year, nil)
		assert.Len(t, points, 365)
		for i := 1; i < len(points); i++ {
			assert.Less(t, points[i-1].Date, points[i].Date)
		}
	})
}

func TestDateRangeParser(t *testing.T) {
	now := time.Date(2024, 4, 15, 18, 30, 0, 0, time.UTC)
	parser := NewDateRangeParser(&FixedTimeProvider{Time: now})

	tests := []struct {
		name      string
		start     string
		end       string
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{name: "explicit range", start: "2024-01-01", end: "2024-01-31", wantStart: "2024-01-01", wantEnd: "2024-01-31"},
		{name: "defaults to last 30 days", wantStart: "2024-03-16", wantEnd: "2024-04-15"},
		{name: "missing start counts back from end", end: "2024-02-29", wantStart: "2024-01-30", wantEnd: "2024-02-29"},
		{name: "missing end means today", start: "2024-04-01", wantStart: "2024-04-01", wantEnd: "2024-04-15"},
		{name: "inverted range is accepted", start: "2024-04-10", end: "2024-04-01", wantStart: "2024-04-10", wantEnd: "2024-04-01"},
		{name: "malformed start", start: "01/02/2024", wantErr: true},
		{name: "malformed end", end: "2024-13-01", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := parser.Parse(tc.start, tc.end)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantStart, r.StartDate())
			assert.Equal(t, tc.wantEnd, r.EndDate())
		})
	}

	t.Run("presets", func(t *testing.T) {
		presets := Presets()
		require.Len(t, presets, 3)
		assert.Equal(t, []int{7, 30, 90}, []int{presets[0].Days, presets[1].Days, presets[2].Days})
	})

	t.Run("parser LastNDays uses its clock", func(t *testing.T) {
		r := parser.LastNDays(90)
		assert.Equal(t, "2024-01-16", r.StartDate())
		assert.Equal(t, "2024-04-15", r.EndDate())
	})
}
