package timerange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var kst = 9 * time.Hour

func TestGetRangeBounds(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC)

	for _, r := range All {
		t.Run(string(r), func(t *testing.T) {
			b, err := GetRangeBounds(r, now)
			require.NoError(t, err)

			assert.Equal(t, now, b.Now)
			assert.Equal(t, b.Now.Add(-b.Duration), b.CurrentStart)
			assert.Equal(t, b.CurrentStart.Add(-b.Duration), b.PreviousStart)
			assert.Equal(t, b.Duration.Milliseconds(), b.DurationMs)
			assert.Equal(t, b.CurrentStart.UTC().Format(isoLayout), b.CurrentStartISO)
		})
	}

	b, err := GetRangeBounds(Range24h, now)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09T12:30:00.000Z", b.CurrentStartISO)
	assert.Equal(t, "2025-03-08T12:30:00.000Z", b.PreviousStartISO)
	assert.Equal(t, int64(86_400_000), b.DurationMs)

	_, err = GetRangeBounds(Range("1y"), now)
	assert.Error(t, err)
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("")
	require.NoError(t, err)
	assert.Equal(t, Range7d, r)

	r, err = ParseRange("90d")
	require.NoError(t, err)
	assert.Equal(t, Range90d, r)

	_, err = ParseRange("14d")
	assert.Error(t, err)
}

func TestNeedsSubDayPrecision(t *testing.T) {
	assert.True(t, Range24h.NeedsSubDayPrecision())
	assert.False(t, Range7d.NeedsSubDayPrecision())
	assert.False(t, Range90d.NeedsSubDayPrecision())
}

func TestToDateKey(t *testing.T) {
	// 20:00 UTC is already the next day at +09:00.
	ts := time.Date(2025, 1, 31, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-01-31", ToDateKey(ts, 0))
	assert.Equal(t, "2025-02-01", ToDateKey(ts, kst))
	assert.Equal(t, "20250201", ToDateSuffix(ts, kst))

	// Input location does not matter, only the instant.
	ny := time.FixedZone("EST", -5*3600)
	assert.Equal(t, "2025-02-01", ToDateKey(ts.In(ny), kst))
}

func TestEnumerateDateKeys(t *testing.T) {
	start := time.Date(2024, 2, 27, 16, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 2, 1, 0, 0, 0, time.UTC)

	keys := EnumerateDateKeys(start, end, kst)
	assert.Equal(t, []string{
		"2024-02-28", "2024-02-29", "2024-03-01", "2024-03-02",
	}, keys)

	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i])
	}

	t.Run("length is days spanned plus one", func(t *testing.T) {
		now := time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)
		for _, r := range All {
			b, err := GetRangeBounds(r, now)
			require.NoError(t, err)
			keys := EnumerateDateKeys(b.CurrentStart, b.Now, 0)
			assert.Len(t, keys, int(r.Duration()/(24*time.Hour))+1)
		}
	})

	t.Run("same day", func(t *testing.T) {
		keys := EnumerateDateKeys(start, start.Add(time.Hour), 0)
		assert.Equal(t, []string{"2024-02-27"}, keys)
	})

	t.Run("reversed", func(t *testing.T) {
		assert.Empty(t, EnumerateDateKeys(end, start, 0))
	})

	t.Run("suffixes", func(t *testing.T) {
		assert.Equal(t, []string{"20240228", "20240229", "20240301", "20240302"},
			EnumerateDateSuffixes(start, end, kst))
	})
}

func TestSeedDailyBuckets(t *testing.T) {
	b := SeedDailyBuckets([]string{"2025-01-01", "2025-01-02"})
	assert.Equal(t, map[string]uint64{"2025-01-01": 0, "2025-01-02": 0}, b)
}
