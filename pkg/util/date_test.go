package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeWithoutZone(t *testing.T) {
	got, ok := ParseTime("2025-01-01T10:45:30")
	if !ok {
		t.Fatalf("expected ok")
	}
	want := time.Date(2025, 1, 1, 10, 45, 30, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("not a time", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestFormatForecastTimestampFloorsToHour(t *testing.T) {
	cases := map[string]string{
		"2025-01-01T10:45:30":       "2025-01-01 10:00:00",
		"2025-01-01T10:00:00":       "2025-01-01 10:00:00",
		"2025-01-01T23:59:59.999":   "2025-01-01 23:00:00",
		"2025-03-09T07:15:00+09:00": "2025-03-09 07:00:00",
	}
	for in, want := range cases {
		ts, ok := ParseTime(in)
		if !ok {
			t.Fatalf("parse %q failed", in)
		}
		if got := FormatForecastTimestamp(ts); got != want {
			t.Errorf("FormatForecastTimestamp(%q) = %q, want %q", in, got, want)
		}
	}
}
