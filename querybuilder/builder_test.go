package querybuilder

import (
	"strings"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mabletask/insights/sessions"
)

func testScan(intraday bool) sessions.Scan {
	s := sessions.Scan{
		Start:     time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2025, 5, 8, 0, 0, 0, 0, time.UTC),
		DailyFrom: "20250501",
		DailyTo:   "20250508",
	}
	if intraday {
		s.IntradaySuffix = "20250508"
	}
	return s
}

func TestBuilderRendersFragmentsInOrder(t *testing.T) {
	b := New()
	b.With("a", "SELECT 1 AS x").With("b", "SELECT x FROM a")
	q, err := b.Build("SELECT * FROM b WHERE x = " + b.Bind("x", 1))
	require.NoError(t, err)

	assert.Equal(t, "WITH\na AS (\nSELECT 1 AS x\n),\nb AS (\nSELECT x FROM a\n)\nSELECT * FROM b WHERE x = @x", q.SQL)
	assert.Equal(t, map[string]any{"x": 1}, q.Params)
}

func TestBuilderErrors(t *testing.T) {
	t.Run("conflicting binding", func(t *testing.T) {
		b := New()
		b.Bind("p", 1)
		b.Bind("p", 2)
		_, err := b.Build("SELECT @p")
		assert.Error(t, err)
	})

	t.Run("same binding twice is fine", func(t *testing.T) {
		b := New()
		b.Bind("p", []string{"/a"})
		b.Bind("p", []string{"/a"})
		_, err := b.Build("SELECT @p")
		assert.NoError(t, err)
	})

	t.Run("bad name", func(t *testing.T) {
		b := New()
		b.Bind("1; DROP", 1)
		_, err := b.Build("SELECT 1")
		assert.Error(t, err)
	})

	t.Run("duplicate fragment", func(t *testing.T) {
		b := New()
		b.With("a", "SELECT 1").With("a", "SELECT 2")
		_, err := b.Build("SELECT * FROM a")
		assert.Error(t, err)
	})

	t.Run("positional placeholder", func(t *testing.T) {
		_, err := New().Build("SELECT * FROM t WHERE x = ?")
		assert.Error(t, err)
	})
}

func TestArgsAreSortedNamedValues(t *testing.T) {
	q := Query{SQL: "SELECT @b, @a", Params: map[string]any{"b": 2, "a": 1}}
	args := q.Args()
	require.Len(t, args, 2)

	first, ok := args[0].(driver.NamedValue)
	require.True(t, ok)
	assert.Equal(t, "a", first.Name)
	assert.Equal(t, 1, first.Value)
}

func TestTransitionsQueryBindsEverything(t *testing.T) {
	tracked := []string{"/", "/pricing", "/login"}
	q, err := TransitionsQuery(testScan(false), sessions.DefaultNormalizer(), tracked)
	require.NoError(t, err)

	assert.Contains(t, q.SQL, "leadInFrame(canonical_path)")
	assert.Contains(t, q.SQL, "ORDER BY event_timestamp, batch_page_id, batch_ordering_id, batch_event_index")
	assert.Contains(t, q.SQL, "has(@tracked_pages, canonical_path)")
	assert.NotContains(t, q.SQL, "/pricing")
	assert.NotContains(t, q.SQL, "events_intraday_")
	assert.NotContains(t, q.SQL, "20250501")

	assert.Equal(t, tracked, q.Params["tracked_pages"])
	assert.Equal(t, testScan(false).Start.UnixMicro(), q.Params["start_us"])
	assert.Equal(t, testScan(false).End.UnixMicro(), q.Params["end_us"])
	assert.Equal(t, "events_20250501", q.Params["daily_from_table"])
	assert.Equal(t, "events_20250508", q.Params["daily_to_table"])
	assert.Equal(t, "/posts/[id]", q.Params["route_template_0"])
	assert.Equal(t, sessions.SchemeHostPattern, q.Params["re_scheme_host"])

	_, hasIntraday := q.Params["intraday_table"]
	assert.False(t, hasIntraday)
}

func TestPageViewSourceUnionsIntraday(t *testing.T) {
	q, err := TopPagesQuery(testScan(true), sessions.DefaultNormalizer(), 10)
	require.NoError(t, err)

	assert.Contains(t, q.SQL, "UNION ALL")
	assert.Contains(t, q.SQL, "_table = @intraday_table")
	assert.Equal(t, "events_intraday_20250508", q.Params["intraday_table"])
	assert.Equal(t, uint64(10), q.Params["row_limit"])
	assert.True(t, strings.HasSuffix(q.SQL, "LIMIT @row_limit"))
}

func TestDropoffQuery(t *testing.T) {
	q, err := DropoffQuery(testScan(false), sessions.DefaultNormalizer(), []string{"/", "/pricing"})
	require.NoError(t, err)
	for _, frag := range []string{"tracked_views AS (", "first_visits AS (", "reached AS (", "countIf(continued)"} {
		assert.Contains(t, q.SQL, frag)
	}
}

func TestTopLandingPagesQuery(t *testing.T) {
	q, err := TopLandingPagesQuery(testScan(false), sessions.DefaultNormalizer(), nil, 5)
	require.NoError(t, err)
	assert.NotContains(t, q.SQL, "@tracked_pages")

	q, err = TopLandingPagesQuery(testScan(false), sessions.DefaultNormalizer(), []string{"/"}, 5)
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "WHERE has(@tracked_pages, canonical_path)")
	assert.Contains(t, q.SQL, "argMin(canonical_path")
}

func TestDailyViewsQuery(t *testing.T) {
	q, err := DailyViewsQuery(testScan(false), sessions.DefaultNormalizer(), 9*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(32400), q.Params["offset_seconds"])
	assert.Contains(t, q.SQL, "'%Y-%m-%d'")
}

func TestIntradayExistsQuery(t *testing.T) {
	q, err := IntradayExistsQuery("20250508")
	require.NoError(t, err)
	assert.Equal(t, "SELECT count() FROM system.tables WHERE database = currentDatabase() AND name = @table_name", q.SQL)
	assert.Equal(t, "events_intraday_20250508", q.Params["table_name"])
}

func TestStaleIntradayQuery(t *testing.T) {
	q, err := StaleIntradayQuery("20250508")
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM system.tables WHERE database = currentDatabase() "+
		"AND match(name, @intraday_tables_re) AND name < @today_table ORDER BY name", q.SQL)
	assert.Equal(t, "events_intraday_20250508", q.Params["today_table"])

	q, err = DailyExistsQuery("20250507")
	require.NoError(t, err)
	assert.Equal(t, "events_20250507", q.Params["table_name"])
}
