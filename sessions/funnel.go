package sessions

import (
	"sort"

	"mabletask/insights/models"
)

// DefaultLimit caps the transition and drop-off tables.
const DefaultLimit = 10

// TransitionCount is a raw (from, to) pair count before ranking.
type TransitionCount struct {
	FromPage string
	ToPage   string
	Count    uint64
}

// DropoffCount is the raw reach/continue tally of one page before ranking.
type DropoffCount struct {
	Page              string
	ReachedSessions   uint64
	ContinuedSessions uint64
}

// CountTransitions tallies moves between two different tracked pages.
func CountTransitions(sessions []Session, tracked TrackedSet) []TransitionCount {
	type pair struct{ from, to string }
	counts := make(map[pair]uint64)
	for _, s := range sessions {
		for _, step := range LinkNext(s.Views) {
			if step.Next == nil {
				continue
			}
			from, to := step.View.CanonicalPath, step.Next.CanonicalPath
			if from == to || !tracked.Has(from) || !tracked.Has(to) {
				continue
			}
			counts[pair{from, to}]++
		}
	}

	out := make([]TransitionCount, 0, len(counts))
	for p, n := range counts {
		out = append(out, TransitionCount{FromPage: p.from, ToPage: p.to, Count: n})
	}
	return out
}

// RankTransitions computes each edge's share of all tracked transitions, sorts
// by count desc then (from, to) asc and keeps the first limit edges.
func RankTransitions(counts []TransitionCount, limit int) []models.TransitionEdge {
	var total uint64
	for _, c := range counts {
		total += c.Count
	}

	edges := make([]models.TransitionEdge, 0, len(counts))
	for _, c := range counts {
		if c.Count == 0 {
			continue
		}
		edge := models.TransitionEdge{FromPage: c.FromPage, ToPage: c.ToPage, Count: c.Count}
		if total > 0 {
			edge.SharePct = float64(c.Count) / float64(total)
		}
		edges = append(edges, edge)
	}

	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.FromPage != b.FromPage {
			return a.FromPage < b.FromPage
		}
		return a.ToPage < b.ToPage
	})
	return capped(edges, limit)
}

// AggregateTransitions is CountTransitions followed by RankTransitions.
func AggregateTransitions(sessions []Session, tracked TrackedSet, limit int) []models.TransitionEdge {
	return RankTransitions(CountTransitions(sessions, tracked), limit)
}

// CountDropoffs decides, for every tracked page a session reached, whether the
// session went on to any other tracked page after its first visit to it.
func CountDropoffs(sessions []Session, tracked TrackedSet) []DropoffCount {
	tallies := make(map[string]*DropoffCount)
	for _, s := range sessions {
		firstSeen := make(map[string]int)
		var order []string
		for i, v := range s.Views {
			if !tracked.Has(v.CanonicalPath) {
				continue
			}
			if _, ok := firstSeen[v.CanonicalPath]; !ok {
				firstSeen[v.CanonicalPath] = i
				order = append(order, v.CanonicalPath)
			}
		}

		for _, page := range order {
			first := firstSeen[page]
			continued := false
			for _, later := range s.Views[first+1:] {
				if later.CanonicalPath != page && tracked.Has(later.CanonicalPath) {
					continued = true
					break
				}
			}

			t, ok := tallies[page]
			if !ok {
				t = &DropoffCount{Page: page}
				tallies[page] = t
			}
			t.ReachedSessions++
			if continued {
				t.ContinuedSessions++
			}
		}
	}

	out := make([]DropoffCount, 0, len(tallies))
	for _, t := range tallies {
		out = append(out, *t)
	}
	return out
}

// NewDropoffRow derives drop-off sessions and rate. A page nobody reached has rate 0.
func NewDropoffRow(page string, reached, continued uint64) models.DropoffRow {
	if continued > reached {
		continued = reached
	}
	row := models.DropoffRow{
		Page:              page,
		ReachedSessions:   reached,
		ContinuedSessions: continued,
		DropoffSessions:   reached - continued,
	}
	if reached > 0 {
		row.DropoffRate = float64(row.DropoffSessions) / float64(reached)
	}
	return row
}

// RankDropoffs sorts by drop-off sessions desc, rate desc, page asc and caps to limit.
func RankDropoffs(counts []DropoffCount, limit int) []models.DropoffRow {
	rows := make([]models.DropoffRow, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, NewDropoffRow(c.Page, c.ReachedSessions, c.ContinuedSessions))
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.DropoffSessions != b.DropoffSessions {
			return a.DropoffSessions > b.DropoffSessions
		}
		if a.DropoffRate != b.DropoffRate {
			return a.DropoffRate > b.DropoffRate
		}
		return a.Page < b.Page
	})
	return capped(rows, limit)
}

// AggregateDropoffs is CountDropoffs followed by RankDropoffs.
func AggregateDropoffs(sessions []Session, tracked TrackedSet, limit int) []models.DropoffRow {
	return RankDropoffs(CountDropoffs(sessions, tracked), limit)
}

func capped[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
