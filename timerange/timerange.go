// Package timerange turns a dashboard range selector into absolute window bounds and
// per-day bucket keys in a fixed timezone offset.
package timerange

import (
	"fmt"
	"time"
)

// Range is one of the fixed dashboard windows.
type Range string

const (
	Range24h Range = "24h"
	Range7d  Range = "7d"
	Range30d Range = "30d"
	Range90d Range = "90d"
)

const (
	day = 24 * time.Hour

	dateKeyLayout    = "2006-01-02"
	dateSuffixLayout = "20060102"
	isoLayout        = "2006-01-02T15:04:05.000Z07:00"
)

var durations = map[Range]time.Duration{
	Range24h: day,
	Range7d:  7 * day,
	Range30d: 30 * day,
	Range90d: 90 * day,
}

// All lists the supported ranges, shortest first.
var All = []Range{Range24h, Range7d, Range30d, Range90d}

// ParseRange validates a raw selector. An empty string selects 7d.
func ParseRange(raw string) (Range, error) {
	if raw == "" {
		return Range7d, nil
	}
	r := Range(raw)
	if _, ok := durations[r]; !ok {
		return "", fmt.Errorf("unsupported range %q (want one of 24h, 7d, 30d, 90d)", raw)
	}
	return r, nil
}

// Duration returns the window length, or zero for an unknown range.
func (r Range) Duration() time.Duration {
	return durations[r]
}

// NeedsSubDayPrecision reports whether whole-day reporting granularity would
// misrepresent the window.
func (r Range) NeedsSubDayPrecision() bool {
	return r.Duration() < 2*day
}

// Bounds is the resolved current and previous window for a range.
// PreviousStart = CurrentStart - Duration and CurrentStart = Now - Duration.
type Bounds struct {
	Range         Range         `json:"range"`
	Now           time.Time     `json:"-"`
	Duration      time.Duration `json:"-"`
	DurationMs    int64         `json:"durationMs"`
	CurrentStart  time.Time     `json:"-"`
	PreviousStart time.Time     `json:"-"`

	NowISO           string `json:"now"`
	CurrentStartISO  string `json:"currentStart"`
	PreviousStartISO string `json:"previousStart"`
}

// GetRangeBounds resolves r relative to now.
func GetRangeBounds(r Range, now time.Time) (Bounds, error) {
	d, ok := durations[r]
	if !ok {
		return Bounds{}, fmt.Errorf("unsupported range %q", r)
	}
	currentStart := now.Add(-d)
	previousStart := currentStart.Add(-d)
	return Bounds{
		Range:            r,
		Now:              now,
		Duration:         d,
		DurationMs:       d.Milliseconds(),
		CurrentStart:     currentStart,
		PreviousStart:    previousStart,
		NowISO:           now.UTC().Format(isoLayout),
		CurrentStartISO:  currentStart.UTC().Format(isoLayout),
		PreviousStartISO: previousStart.UTC().Format(isoLayout),
	}, nil
}

// ToDateKey shifts t by a fixed offset (no DST handling) and returns its YYYY-MM-DD day.
func ToDateKey(t time.Time, offset time.Duration) string {
	return shift(t, offset).Format(dateKeyLayout)
}

// ToDateSuffix is ToDateKey in the YYYYMMDD form used by partition names.
func ToDateSuffix(t time.Time, offset time.Duration) string {
	return shift(t, offset).Format(dateSuffixLayout)
}

// EnumerateDateKeys returns every day key from start to end inclusive, in order.
// It returns nil when end falls on an earlier day than start.
func EnumerateDateKeys(start, end time.Time, offset time.Duration) []string {
	return enumerate(start, end, offset, dateKeyLayout)
}

// EnumerateDateSuffixes is EnumerateDateKeys in YYYYMMDD form.
func EnumerateDateSuffixes(start, end time.Time, offset time.Duration) []string {
	return enumerate(start, end, offset, dateSuffixLayout)
}

// SeedDailyBuckets returns a zero count for every key so that idle days still show up.
func SeedDailyBuckets(keys []string) map[string]uint64 {
	buckets := make(map[string]uint64, len(keys))
	for _, k := range keys {
		buckets[k] = 0
	}
	return buckets
}

func enumerate(start, end time.Time, offset time.Duration, layout string) []string {
	first := midnight(shift(start, offset))
	last := midnight(shift(end, offset))
	if last.Before(first) {
		return nil
	}
	keys := make([]string, 0, int(last.Sub(first)/day)+1)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		keys = append(keys, d.Format(layout))
	}
	return keys
}

// shift moves t into a UTC clock reading offset by the given amount, so that
// calendar math below never sees a DST transition.
func shift(t time.Time, offset time.Duration) time.Time {
	return t.UTC().Add(offset)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
