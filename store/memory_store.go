package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mabletask/insights/models"
	"mabletask/insights/sessions"
	"mabletask/insights/timerange"
)

// MemoryStore keeps partitions in process and computes aggregates with the
// sessions engine. It serves local development and tests.
type MemoryStore struct {
	engine *sessions.Engine
	offset time.Duration

	mu       sync.RWMutex
	daily    map[string][]models.RawPageViewEvent
	intraday map[string][]models.RawPageViewEvent

	// finalizedBefore is the "today" of the last FinalizeIntraday; late events
	// for earlier days go straight to their daily partition.
	finalizedBefore string
}

func NewMemoryStore(engine *sessions.Engine, offset time.Duration) *MemoryStore {
	return &MemoryStore{
		engine:   engine,
		offset:   offset,
		daily:    make(map[string][]models.RawPageViewEvent),
		intraday: make(map[string][]models.RawPageViewEvent),
	}
}

// AddDaily stores finalized events under a daily partition.
func (m *MemoryStore) AddDaily(suffix string, events ...models.RawPageViewEvent) error {
	if err := validateSuffix(suffix); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily[suffix] = append(m.daily[suffix], events...)
	return nil
}

// Finalize moves an intraday partition into the daily partition of the same day.
func (m *MemoryStore) Finalize(suffix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intraday[suffix]; !ok {
		return fmt.Errorf("no intraday partition %s", suffix)
	}
	m.finalizeLocked(suffix)
	return nil
}

func (m *MemoryStore) finalizeLocked(suffix string) {
	m.daily[suffix] = append(m.daily[suffix], m.intraday[suffix]...)
	delete(m.intraday, suffix)
}

// FinalizeIntraday folds every intraday partition older than today into its
// daily partition.
func (m *MemoryStore) FinalizeIntraday(ctx context.Context, today string) error {
	if err := validateSuffix(today); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for suffix := range m.intraday {
		if suffix < today {
			m.finalizeLocked(suffix)
		}
	}
	if today > m.finalizedBefore {
		m.finalizedBefore = today
	}
	return nil
}

func (m *MemoryStore) IntradayExists(ctx context.Context, suffix string) (bool, error) {
	if err := validateSuffix(suffix); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.intraday[suffix]
	return ok, nil
}

func (m *MemoryStore) InsertPageViews(ctx context.Context, events []models.RawPageViewEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range events {
		suffix := timerange.ToDateSuffix(ev.EventTimestamp, m.offset)
		if suffix < m.finalizedBefore {
			m.daily[suffix] = append(m.daily[suffix], ev)
			continue
		}
		m.intraday[suffix] = append(m.intraday[suffix], ev)
	}
	return nil
}

// scan returns the reconstructed sessions visible to s.
func (m *MemoryStore) scan(ctx context.Context, s sessions.Scan) ([]sessions.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.IncludesIntraday() {
		if err := validateSuffix(s.IntradaySuffix); err != nil {
			return nil, err
		}
	}

	m.mu.RLock()
	var events []models.RawPageViewEvent
	suffixes := make([]string, 0, len(m.daily))
	for suffix := range m.daily {
		if suffix >= s.DailyFrom && suffix <= s.DailyTo {
			suffixes = append(suffixes, suffix)
		}
	}
	sort.Strings(suffixes)
	for _, suffix := range suffixes {
		events = appendInWindow(events, m.daily[suffix], s)
	}
	if s.IncludesIntraday() {
		events = appendInWindow(events, m.intraday[s.IntradaySuffix], s)
	}
	m.mu.RUnlock()

	return m.engine.Reconstruct(events), nil
}

func appendInWindow(dst, src []models.RawPageViewEvent, s sessions.Scan) []models.RawPageViewEvent {
	for _, ev := range src {
		if ev.EventTimestamp.Before(s.Start) || ev.EventTimestamp.After(s.End) {
			continue
		}
		dst = append(dst, ev)
	}
	return dst
}

func (m *MemoryStore) TransitionCounts(ctx context.Context, scan sessions.Scan, tracked []string) ([]sessions.TransitionCount, error) {
	ss, err := m.scan(ctx, scan)
	if err != nil {
		return nil, err
	}
	return sessions.CountTransitions(ss, sessions.NewTrackedSet(tracked)), nil
}

func (m *MemoryStore) DropoffCounts(ctx context.Context, scan sessions.Scan, tracked []string) ([]sessions.DropoffCount, error) {
	ss, err := m.scan(ctx, scan)
	if err != nil {
		return nil, err
	}
	return sessions.CountDropoffs(ss, sessions.NewTrackedSet(tracked)), nil
}

func (m *MemoryStore) TopPages(ctx context.Context, scan sessions.Scan, limit int) ([]models.TopPageRow, error) {
	ss, err := m.scan(ctx, scan)
	if err != nil {
		return nil, err
	}
	return sessions.TopPages(ss, limit), nil
}

func (m *MemoryStore) TopLandingPages(ctx context.Context, scan sessions.Scan, tracked []string, limit int) ([]models.TopLandingPageRow, error) {
	ss, err := m.scan(ctx, scan)
	if err != nil {
		return nil, err
	}
	return sessions.TopLandingPages(ss, sessions.NewTrackedSet(tracked), limit), nil
}

func (m *MemoryStore) DailyViews(ctx context.Context, scan sessions.Scan) (map[string]uint64, error) {
	ss, err := m.scan(ctx, scan)
	if err != nil {
		return nil, err
	}
	out := make(map[string]uint64)
	for _, s := range ss {
		for _, v := range s.Views {
			out[timerange.ToDateKey(v.EventTimestamp, m.offset)]++
		}
	}
	return out, nil
}
