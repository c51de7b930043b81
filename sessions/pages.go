package sessions

import (
	"sort"

	"mabletask/insights/models"
)

// TopPages groups views by canonical path, counting views and distinct visitors.
// The title is the latest non-blank one seen for the path.
func TopPages(sessions []Session, limit int) []models.TopPageRow {
	type agg struct {
		row     models.TopPageRow
		users   map[string]struct{}
		titleAt models.OrderingKey
	}
	byPath := make(map[string]*agg)
	for _, s := range sessions {
		for _, v := range s.Views {
			a, ok := byPath[v.CanonicalPath]
			if !ok {
				a = &agg{row: models.TopPageRow{Path: v.CanonicalPath}, users: make(map[string]struct{})}
				byPath[v.CanonicalPath] = a
			}
			a.row.Views++
			a.users[v.UserPseudoID] = struct{}{}
			if v.Title != nil && (a.row.Title == nil || a.titleAt.Less(v.OrderingKey)) {
				a.row.Title = v.Title
				a.titleAt = v.OrderingKey
			}
		}
	}

	rows := make([]models.TopPageRow, 0, len(byPath))
	for _, a := range byPath {
		a.row.ActiveUsers = uint64(len(a.users))
		rows = append(rows, a.row)
	}
	SortTopPages(rows)
	return capped(rows, limit)
}

// TopLandingPages groups sessions by their first tracked page view. An empty
// tracked set makes every page eligible.
func TopLandingPages(sessions []Session, tracked TrackedSet, limit int) []models.TopLandingPageRow {
	type agg struct {
		row   models.TopLandingPageRow
		users map[string]struct{}
	}
	byPage := make(map[string]*agg)
	for _, s := range sessions {
		for _, v := range s.Views {
			if len(tracked) > 0 && !tracked.Has(v.CanonicalPath) {
				continue
			}
			a, ok := byPage[v.CanonicalPath]
			if !ok {
				a = &agg{row: models.TopLandingPageRow{LandingPage: v.CanonicalPath}, users: make(map[string]struct{})}
				byPage[v.CanonicalPath] = a
			}
			a.row.Sessions++
			a.users[v.UserPseudoID] = struct{}{}
			break
		}
	}

	rows := make([]models.TopLandingPageRow, 0, len(byPage))
	for _, a := range byPage {
		a.row.ActiveUsers = uint64(len(a.users))
		rows = append(rows, a.row)
	}
	SortLandingPages(rows)
	return capped(rows, limit)
}

// SortTopPages orders by views desc, then path asc.
func SortTopPages(rows []models.TopPageRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Views != rows[j].Views {
			return rows[i].Views > rows[j].Views
		}
		return rows[i].Path < rows[j].Path
	})
}

// SortLandingPages orders by sessions desc, then landing page asc.
func SortLandingPages(rows []models.TopLandingPageRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Sessions != rows[j].Sessions {
			return rows[i].Sessions > rows[j].Sessions
		}
		return rows[i].LandingPage < rows[j].LandingPage
	})
}
