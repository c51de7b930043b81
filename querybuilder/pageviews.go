package querybuilder

import (
	"fmt"
	"strings"
	"time"

	"mabletask/insights/models"
	"mabletask/insights/sessions"
)

// Table layout of the event warehouse.
const (
	DailyTablePrefix    = "events_"
	IntradayTablePrefix = "events_intraday_"

	dailyTablesPattern    = `^events_[0-9]{8}$`
	intradayTablesPattern = `^events_intraday_[0-9]{8}$`

	sessionParam = "ga_session_id"
)

// orderingColumns is the deterministic in-session order.
const orderingColumns = "event_timestamp, batch_page_id, batch_ordering_id, batch_event_index"

// DailyTable and IntradayTable name the partitions for a YYYYMMDD suffix.
func DailyTable(suffix string) string    { return DailyTablePrefix + suffix }
func IntradayTable(suffix string) string { return IntradayTablePrefix + suffix }

// PageViewSource returns a subquery reading finalized daily partitions of the
// scan, unioned with today's intraday partition when the scan includes it.
func PageViewSource(b *Builder, scan sessions.Scan) string {
	cols := "event_name, event_timestamp, user_pseudo_id, event_params, page_location, page_title, " +
		"batch_page_id, batch_ordering_id, batch_event_index"

	daily := fmt.Sprintf("SELECT %s FROM merge(currentDatabase(), %s) WHERE _table >= %s AND _table <= %s",
		cols,
		b.Bind("daily_tables_re", dailyTablesPattern),
		b.Bind("daily_from_table", DailyTable(scan.DailyFrom)),
		b.Bind("daily_to_table", DailyTable(scan.DailyTo)),
	)
	if !scan.IncludesIntraday() {
		return "(" + daily + ")"
	}

	intraday := fmt.Sprintf("SELECT %s FROM merge(currentDatabase(), %s) WHERE _table = %s",
		cols,
		b.Bind("intraday_tables_re", intradayTablesPattern),
		b.Bind("intraday_table", IntradayTable(scan.IntradaySuffix)),
	)
	return "(" + daily + "\nUNION ALL\n" + intraday + ")"
}

// CleanPathExpr is the SQL twin of sessions.CleanPath applied to column.
func CleanPathExpr(b *Builder, column string) string {
	expr := fmt.Sprintf("trimBoth(%s)", column)
	expr = fmt.Sprintf("replaceRegexpOne(%s, %s, '')", expr, b.Bind("re_scheme_host", sessions.SchemeHostPattern))
	expr = fmt.Sprintf("replaceRegexpOne(%s, %s, '')", expr, b.Bind("re_query_fragment", sessions.QueryFragmentPattern))
	expr = fmt.Sprintf("replaceRegexpAll(%s, %s, '/')", expr, b.Bind("re_repeated_slash", sessions.RepeatedSlashPattern))
	expr = fmt.Sprintf("replaceRegexpOne(%s, %s, '')", expr, b.Bind("re_trailing_slash", sessions.TrailingSlashPattern))
	return expr
}

// CanonicalPathExpr maps a cleaned path column to its canonical template using
// the normalizer's static paths and route table.
func CanonicalPathExpr(b *Builder, norm *sessions.Normalizer, column string) string {
	parts := []string{
		fmt.Sprintf("has(%s, %s), %s", b.Bind("static_paths", nonNil(norm.StaticPaths())), column, column),
	}
	for i, r := range norm.Routes() {
		parts = append(parts, fmt.Sprintf("match(%s, %s), %s",
			column,
			b.Bind(fmt.Sprintf("route_%d", i), r.Pattern),
			b.Bind(fmt.Sprintf("route_template_%d", i), r.Template),
		))
	}
	return fmt.Sprintf("multiIf(%s, %s)", strings.Join(parts, ", "), column)
}

// WithPageViews adds the raw_views and page_views fragments: attributable
// page_view events inside the scan window with a canonical_path column.
func WithPageViews(b *Builder, scan sessions.Scan, norm *sessions.Normalizer) *Builder {
	sessionExpr := fmt.Sprintf("event_params[%s]", b.Bind("session_param", sessionParam))

	b.With("raw_views", fmt.Sprintf(`
SELECT
    concat(user_pseudo_id, '.', %[1]s) AS session_key,
    user_pseudo_id,
    event_timestamp,
    batch_page_id,
    batch_ordering_id,
    batch_event_index,
    page_title,
    %[2]s AS cleaned_path
FROM %[3]s
WHERE event_name = %[4]s
    AND event_timestamp >= %[5]s
    AND event_timestamp <= %[6]s
    AND user_pseudo_id != ''
    AND %[1]s != ''`,
		sessionExpr,
		CleanPathExpr(b, "page_location"),
		PageViewSource(b, scan),
		b.Bind("event_name", models.PageViewEvent),
		b.Bind("start_us", scan.Start.UnixMicro()),
		b.Bind("end_us", scan.End.UnixMicro()),
	))

	pathExpr := "if(cleaned_path = '', '/', if(startsWith(cleaned_path, '/'), cleaned_path, concat('/', cleaned_path)))"
	b.With("page_views", fmt.Sprintf(`
SELECT
    session_key,
    user_pseudo_id,
    event_timestamp,
    batch_page_id,
    batch_ordering_id,
    batch_event_index,
    page_title,
    %s AS canonical_path
FROM (SELECT *, %s AS path FROM raw_views)`,
		CanonicalPathExpr(b, norm, "path"),
		pathExpr,
	))
	return b
}

// TransitionsQuery counts moves between two different tracked pages using the
// next page view of the same session.
func TransitionsQuery(scan sessions.Scan, norm *sessions.Normalizer, tracked []string) (Query, error) {
	b := WithPageViews(New(), scan, norm)
	b.With("ordered", fmt.Sprintf(`
SELECT
    session_key,
    canonical_path,
    leadInFrame(canonical_path) OVER (
        PARTITION BY session_key
        ORDER BY %s
        ROWS BETWEEN CURRENT ROW AND 1 FOLLOWING
    ) AS next_path
FROM page_views`, orderingColumns))

	pages := b.Bind("tracked_pages", nonNil(tracked))
	return b.Build(fmt.Sprintf(`
SELECT canonical_path AS from_page, next_path AS to_page, count() AS transitions
FROM ordered
WHERE next_path != ''
    AND next_path != canonical_path
    AND has(%[1]s, canonical_path)
    AND has(%[1]s, next_path)
GROUP BY from_page, to_page`, pages))
}

// DropoffQuery counts, per tracked page, the sessions that reached it and the
// sessions that went on to another tracked page after the first visit.
func DropoffQuery(scan sessions.Scan, norm *sessions.Normalizer, tracked []string) (Query, error) {
	b := WithPageViews(New(), scan, norm)
	pages := b.Bind("tracked_pages", nonNil(tracked))

	b.With("tracked_views", fmt.Sprintf(`
SELECT
    session_key,
    canonical_path,
    row_number() OVER (PARTITION BY session_key ORDER BY %s) AS position
FROM page_views
WHERE has(%s, canonical_path)`, orderingColumns, pages))

	b.With("first_visits", `
SELECT session_key, canonical_path, min(position) AS first_position
FROM tracked_views
GROUP BY session_key, canonical_path`)

	b.With("reached", `
SELECT
    f.session_key AS session_key,
    f.canonical_path AS page,
    countIf(t.position > f.first_position AND t.canonical_path != f.canonical_path) > 0 AS continued
FROM first_visits AS f
INNER JOIN tracked_views AS t ON t.session_key = f.session_key
GROUP BY f.session_key, f.canonical_path`)

	return b.Build(`
SELECT page, count() AS reached_sessions, countIf(continued) AS continued_sessions
FROM reached
GROUP BY page`)
}

// TopPagesQuery aggregates page views by canonical path.
func TopPagesQuery(scan sessions.Scan, norm *sessions.Normalizer, limit int) (Query, error) {
	b := WithPageViews(New(), scan, norm)
	return b.Build(fmt.Sprintf(`
SELECT
    canonical_path,
    argMaxIf(page_title, tuple(%s), page_title != '') AS title,
    count() AS views,
    uniqExact(user_pseudo_id) AS active_users
FROM page_views
GROUP BY canonical_path
ORDER BY views DESC, canonical_path ASC
LIMIT %s`, orderingColumns, b.Bind("row_limit", uint64(limit))))
}

// TopLandingPagesQuery groups sessions by their first tracked page view.
// With no tracked pages every page view is eligible.
func TopLandingPagesQuery(scan sessions.Scan, norm *sessions.Normalizer, tracked []string, limit int) (Query, error) {
	b := WithPageViews(New(), scan, norm)

	filter := ""
	if len(tracked) > 0 {
		filter = fmt.Sprintf("\nWHERE has(%s, canonical_path)", b.Bind("tracked_pages", tracked))
	}
	b.With("landings", fmt.Sprintf(`
SELECT
    session_key,
    any(user_pseudo_id) AS user_pseudo_id,
    argMin(canonical_path, tuple(%s)) AS landing_page
FROM page_views%s
GROUP BY session_key`, orderingColumns, filter))

	return b.Build(fmt.Sprintf(`
SELECT landing_page, count() AS sessions, uniqExact(user_pseudo_id) AS active_users
FROM landings
GROUP BY landing_page
ORDER BY sessions DESC, landing_page ASC
LIMIT %s`, b.Bind("row_limit", uint64(limit))))
}

// DailyViewsQuery counts page views per day in the fixed offset.
func DailyViewsQuery(scan sessions.Scan, norm *sessions.Normalizer, offset time.Duration) (Query, error) {
	b := WithPageViews(New(), scan, norm)
	return b.Build(fmt.Sprintf(`
SELECT
    formatDateTime(toDateTime(intDiv(event_timestamp, 1000000) + %s, 'UTC'), '%%Y-%%m-%%d') AS day,
    count() AS views
FROM page_views
GROUP BY day
ORDER BY day`, b.Bind("offset_seconds", int64(offset/time.Second))))
}

// IntradayExistsQuery probes system.tables for one intraday partition.
func IntradayExistsQuery(suffix string) (Query, error) {
	return tableExistsQuery(IntradayTable(suffix))
}

// DailyExistsQuery probes system.tables for one daily partition.
func DailyExistsQuery(suffix string) (Query, error) {
	return tableExistsQuery(DailyTable(suffix))
}

func tableExistsQuery(table string) (Query, error) {
	b := New()
	return b.Build(fmt.Sprintf(
		"SELECT count() FROM system.tables WHERE database = currentDatabase() AND name = %s",
		b.Bind("table_name", table),
	))
}

// StaleIntradayQuery lists intraday partitions of days before today, oldest first.
func StaleIntradayQuery(today string) (Query, error) {
	b := New()
	return b.Build(fmt.Sprintf(
		"SELECT name FROM system.tables WHERE database = currentDatabase() AND match(name, %s) AND name < %s ORDER BY name",
		b.Bind("intraday_tables_re", intradayTablesPattern),
		b.Bind("today_table", IntradayTable(today)),
	))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
