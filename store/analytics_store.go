package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"mabletask/insights/database"
	"mabletask/insights/metrics"
	"mabletask/insights/models"
	"mabletask/insights/querybuilder"
	"mabletask/insights/sessions"
	"mabletask/insights/timerange"
)

const sourceClickHouse = "clickhouse"

// AnalyticsStore is the ClickHouse-backed Warehouse.
type AnalyticsStore struct {
	DB     *database.ClickHouseClient
	norm   *sessions.Normalizer
	offset time.Duration

	finalizeMu      sync.Mutex
	finalizedBefore string
}

func NewAnalyticsStore(chClient *database.ClickHouseClient, norm *sessions.Normalizer, offset time.Duration) *AnalyticsStore {
	return &AnalyticsStore{
		DB:     chClient,
		norm:   norm,
		offset: offset,
	}
}

func (s *AnalyticsStore) query(ctx context.Context, name string, q querybuilder.Query) (driver.Rows, error) {
	started := time.Now()
	rows, err := s.DB.Conn.Query(ctx, q.SQL, q.Args()...)
	metrics.ObserveUpstream(sourceClickHouse, name, started, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}
	return rows, nil
}

func (s *AnalyticsStore) IntradayExists(ctx context.Context, suffix string) (bool, error) {
	if err := validateSuffix(suffix); err != nil {
		return false, err
	}
	q, err := querybuilder.IntradayExistsQuery(suffix)
	if err != nil {
		return false, err
	}

	return s.tableExists(ctx, "intraday_exists", q)
}

func (s *AnalyticsStore) TransitionCounts(ctx context.Context, scan sessions.Scan, tracked []string) ([]sessions.TransitionCount, error) {
	q, err := querybuilder.TransitionsQuery(scan, s.norm, tracked)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, "transitions", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []sessions.TransitionCount
	for rows.Next() {
		var tc sessions.TransitionCount
		if err := rows.Scan(&tc.FromPage, &tc.ToPage, &tc.Count); err != nil {
			slog.Warn("skipping unreadable transition row", "error", err)
			continue
		}
		results = append(results, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for transitions: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) DropoffCounts(ctx context.Context, scan sessions.Scan, tracked []string) ([]sessions.DropoffCount, error) {
	q, err := querybuilder.DropoffQuery(scan, s.norm, tracked)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, "dropoffs", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []sessions.DropoffCount
	for rows.Next() {
		var dc sessions.DropoffCount
		if err := rows.Scan(&dc.Page, &dc.ReachedSessions, &dc.ContinuedSessions); err != nil {
			slog.Warn("skipping unreadable drop-off row", "error", err)
			continue
		}
		results = append(results, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for drop-offs: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) TopPages(ctx context.Context, scan sessions.Scan, limit int) ([]models.TopPageRow, error) {
	q, err := querybuilder.TopPagesQuery(scan, s.norm, limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, "top_pages", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.TopPageRow
	for rows.Next() {
		var (
			row   models.TopPageRow
			title string
		)
		if err := rows.Scan(&row.Path, &title, &row.Views, &row.ActiveUsers); err != nil {
			slog.Warn("skipping unreadable top page row", "error", err)
			continue
		}
		row.Title = s.norm.NormalizeTitle(title)
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top pages: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) TopLandingPages(ctx context.Context, scan sessions.Scan, tracked []string, limit int) ([]models.TopLandingPageRow, error) {
	q, err := querybuilder.TopLandingPagesQuery(scan, s.norm, tracked, limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, "top_landing_pages", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.TopLandingPageRow
	for rows.Next() {
		var row models.TopLandingPageRow
		if err := rows.Scan(&row.LandingPage, &row.Sessions, &row.ActiveUsers); err != nil {
			slog.Warn("skipping unreadable landing page row", "error", err)
			continue
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for landing pages: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) DailyViews(ctx context.Context, scan sessions.Scan) (map[string]uint64, error) {
	q, err := querybuilder.DailyViewsQuery(scan, s.norm, s.offset)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, "daily_views", q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make(map[string]uint64)
	for rows.Next() {
		var (
			day   string
			views uint64
		)
		if err := rows.Scan(&day, &views); err != nil {
			slog.Warn("skipping unreadable daily views row", "error", err)
			continue
		}
		results[day] = views
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for daily views: %w", err)
	}
	return results, nil
}

const partitionTableDDL = `
	CREATE TABLE IF NOT EXISTS %s (
		event_name LowCardinality(String),
		event_timestamp Int64,
		user_pseudo_id String,
		event_params Map(String, String),
		page_location String,
		page_title String,
		batch_page_id Int64,
		batch_ordering_id Int64,
		batch_event_index Int64
	) ENGINE = MergeTree
	ORDER BY (user_pseudo_id, event_timestamp)
`

func (s *AnalyticsStore) tableExists(ctx context.Context, name string, q querybuilder.Query) (bool, error) {
	started := time.Now()
	var n uint64
	err := s.DB.Conn.QueryRow(ctx, q.SQL, q.Args()...).Scan(&n)
	metrics.ObserveUpstream(sourceClickHouse, name, started, err)
	if err != nil {
		return false, fmt.Errorf("failed to check %v: %w", q.Params["table_name"], err)
	}
	return n > 0, nil
}

// FinalizeIntraday folds every intraday partition older than today into its
// daily table. A missing daily table is produced by renaming the intraday one;
// otherwise rows are copied over and the intraday table dropped.
func (s *AnalyticsStore) FinalizeIntraday(ctx context.Context, today string) error {
	if err := validateSuffix(today); err != nil {
		return err
	}
	s.finalizeMu.Lock()
	defer s.finalizeMu.Unlock()
	if today <= s.finalizedBefore {
		return nil
	}

	q, err := querybuilder.StaleIntradayQuery(today)
	if err != nil {
		return err
	}
	rows, err := s.query(ctx, "stale_intraday", q)
	if err != nil {
		return err
	}
	var stale []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("failed to read intraday table name: %w", err)
		}
		stale = append(stale, strings.TrimPrefix(name, querybuilder.IntradayTablePrefix))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating intraday tables: %w", err)
	}

	for _, suffix := range stale {
		if err := s.finalize(ctx, suffix); err != nil {
			return err
		}
	}
	s.finalizedBefore = today
	return nil
}

func (s *AnalyticsStore) finalize(ctx context.Context, suffix string) error {
	if err := validateSuffix(suffix); err != nil {
		return err
	}
	intraday, daily := querybuilder.IntradayTable(suffix), querybuilder.DailyTable(suffix)

	q, err := querybuilder.DailyExistsQuery(suffix)
	if err != nil {
		return err
	}
	exists, err := s.tableExists(ctx, "daily_exists", q)
	if err != nil {
		return err
	}

	if !exists {
		if err := s.DB.Conn.Exec(ctx, fmt.Sprintf("RENAME TABLE %s TO %s", intraday, daily)); err != nil {
			return fmt.Errorf("failed to rename %s: %w", intraday, err)
		}
	} else {
		if err := s.DB.Conn.Exec(ctx, fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", daily, intraday)); err != nil {
			return fmt.Errorf("failed to copy %s into %s: %w", intraday, daily, err)
		}
		if err := s.DB.Conn.Exec(ctx, "DROP TABLE IF EXISTS "+intraday); err != nil {
			return fmt.Errorf("failed to drop %s: %w", intraday, err)
		}
	}
	slog.Info("finalized intraday partition", "table", intraday, "into", daily)
	return nil
}

// partitionTable is where an event for suffix is written: the intraday table,
// or the daily one once that day has been finalized.
func (s *AnalyticsStore) partitionTable(suffix string) string {
	s.finalizeMu.Lock()
	defer s.finalizeMu.Unlock()
	if suffix < s.finalizedBefore {
		return querybuilder.DailyTable(suffix)
	}
	return querybuilder.IntradayTable(suffix)
}

// InsertPageViews batches events into events_intraday_YYYYMMDD, creating the
// partition table on first write of the day. Late events for a finalized day
// go to events_YYYYMMDD.
func (s *AnalyticsStore) InsertPageViews(ctx context.Context, events []models.RawPageViewEvent) error {
	if len(events) == 0 {
		return nil
	}

	byDay := make(map[string][]models.RawPageViewEvent)
	for _, ev := range events {
		suffix := timerange.ToDateSuffix(ev.EventTimestamp, s.offset)
		byDay[suffix] = append(byDay[suffix], ev)
	}

	for suffix, dayEvents := range byDay {
		if err := validateSuffix(suffix); err != nil {
			return err
		}
		table := s.partitionTable(suffix)
		if err := s.DB.Conn.Exec(ctx, fmt.Sprintf(partitionTableDDL, table)); err != nil {
			return fmt.Errorf("failed to create %s: %w", table, err)
		}

		batch, err := s.DB.Conn.PrepareBatch(ctx, "INSERT INTO "+table)
		if err != nil {
			return fmt.Errorf("failed to prepare batch insert: %w", err)
		}

		for _, ev := range dayEvents {
			params := map[string]string{}
			if ev.SessionID != nil {
				params["ga_session_id"] = fmt.Sprintf("%d", *ev.SessionID)
			}
			err := batch.Append(
				ev.EventName,
				ev.EventTimestamp.UnixMicro(),
				ev.UserPseudoID,
				params,
				ev.PageLocation,
				ev.PageTitle,
				ev.BatchPageID,
				ev.BatchOrderingID,
				ev.BatchEventIndex,
			)
			if err != nil {
				slog.Warn("error appending event to batch", "table", table, "user", ev.UserPseudoID, "error", err)
			}
		}

		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to send batch: %w", err)
		}
		slog.Info("inserted page views", "table", table, "count", len(dayEvents))
	}
	return nil
}
