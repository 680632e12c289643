package util

import (
	"strconv"
	"strings"
	"time"
)

// ForecastLayout renders forecast timestamps.
const ForecastLayout = "2006-01-02 15:04:05"

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	ForecastLayout,
	"2006-01-02",
}

// ParseTime accepts RFC3339, zone-less ISO datetimes (read as UTC), the
// forecast layout and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// FloorToHour drops minutes, seconds and sub-second parts in t's location.
func FloorToHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// FormatForecastTimestamp floors t to the hour and renders it as
// "YYYY-MM-DD HH:MM:SS".
func FormatForecastTimestamp(t time.Time) string {
	return FloorToHour(t).Format(ForecastLayout)
}
