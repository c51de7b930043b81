// Package sessions rebuilds browsing sessions from raw page-view events and
// computes navigation funnels over them: page transitions and drop-off.
//
// Everything here is pure; the warehouse computes the same aggregates in SQL
// and hands raw counts back to RankTransitions and RankDropoffs.
package sessions

import (
	"sort"
	"strconv"

	"mabletask/insights/models"
)

// SessionKey combines the visitor pseudo id with the visit id. Events without
// either part cannot be attributed to a session.
func SessionKey(userPseudoID string, sessionID *int64) (string, bool) {
	if userPseudoID == "" || sessionID == nil {
		return "", false
	}
	return userPseudoID + "." + strconv.FormatInt(*sessionID, 10), true
}

// Session is the ordered page views of one visit.
type Session struct {
	Key   string
	Views []models.NormalizedPageView
}

// Engine normalizes and orders raw events.
type Engine struct {
	norm *Normalizer
}

func NewEngine(norm *Normalizer) *Engine {
	if norm == nil {
		norm = DefaultNormalizer()
	}
	return &Engine{norm: norm}
}

func (e *Engine) Normalizer() *Normalizer { return e.norm }

// Normalize attributes one raw event. ok is false for events without a session.
func (e *Engine) Normalize(ev models.RawPageViewEvent) (models.NormalizedPageView, bool) {
	key, ok := SessionKey(ev.UserPseudoID, ev.SessionID)
	if !ok {
		return models.NormalizedPageView{}, false
	}
	return models.NormalizedPageView{
		SessionKey:     key,
		UserPseudoID:   ev.UserPseudoID,
		EventTimestamp: ev.EventTimestamp,
		CanonicalPath:  e.norm.NormalizePath(ev.PageLocation),
		Title:          e.norm.NormalizeTitle(ev.PageTitle),
		OrderingKey: models.OrderingKey{
			EventTimestamp:  ev.EventTimestamp,
			BatchPageID:     ev.BatchPageID,
			BatchOrderingID: ev.BatchOrderingID,
			BatchEventIndex: ev.BatchEventIndex,
		},
	}, true
}

// Reconstruct groups page views into sessions, each sorted deterministically.
// Sessions come back ordered by key. Non page_view events and unattributable
// events are dropped.
func (e *Engine) Reconstruct(events []models.RawPageViewEvent) []Session {
	byKey := make(map[string][]models.NormalizedPageView)
	for _, ev := range events {
		if ev.EventName != "" && ev.EventName != models.PageViewEvent {
			continue
		}
		v, ok := e.Normalize(ev)
		if !ok {
			continue
		}
		byKey[v.SessionKey] = append(byKey[v.SessionKey], v)
	}

	out := make([]Session, 0, len(byKey))
	for key, views := range byKey {
		SortSession(views)
		out = append(out, Session{Key: key, Views: views})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// SortSession orders views by (timestamp, batch page id, batch ordering id, event index).
func SortSession(views []models.NormalizedPageView) {
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].OrderingKey.Less(views[j].OrderingKey)
	})
}

// Step is a page view with its immediate successor in the same session.
type Step struct {
	View    models.NormalizedPageView
	Next    *models.NormalizedPageView
	Ordinal int
}

// LinkNext pairs every view with the next one; the last view has no successor.
func LinkNext(views []models.NormalizedPageView) []Step {
	steps := make([]Step, len(views))
	for i := range views {
		steps[i] = Step{View: views[i], Ordinal: i + 1}
		if i+1 < len(views) {
			next := views[i+1]
			steps[i].Next = &next
		}
	}
	return steps
}

// TrackedSet is the allow-list of canonical pages used for funnel analysis.
type TrackedSet map[string]struct{}

func NewTrackedSet(pages []string) TrackedSet {
	s := make(TrackedSet, len(pages))
	for _, p := range pages {
		s[p] = struct{}{}
	}
	return s
}

func (s TrackedSet) Has(page string) bool {
	_, ok := s[page]
	return ok
}
