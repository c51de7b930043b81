package sessions

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mabletask/insights/models"
	"mabletask/insights/timerange"
)

var base = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func sid(n int64) *int64 { return &n }

func view(user string, session int64, offsetSec int, loc string) models.RawPageViewEvent {
	return models.RawPageViewEvent{
		EventName:      models.PageViewEvent,
		UserPseudoID:   user,
		SessionID:      sid(session),
		EventTimestamp: base.Add(time.Duration(offsetSec) * time.Second),
		PageLocation:   loc,
	}
}

func TestSessionKey(t *testing.T) {
	key, ok := SessionKey("u1", sid(1700000000))
	assert.True(t, ok)
	assert.Equal(t, "u1.1700000000", key)

	_, ok = SessionKey("u1", nil)
	assert.False(t, ok)
	_, ok = SessionKey("", sid(1))
	assert.False(t, ok)
}

func TestNormalizePath(t *testing.T) {
	n := DefaultNormalizer()
	tests := []struct {
		in   string
		want string
	}{
		{"/", "/"},
		{"", "/"},
		{"/ ", "/"},
		{"  ", "/"},
		{"/pricing/", "/pricing"},
		{"/pricing//", "/pricing"},
		{"https://app.example.com/pricing?plan=pro#faq", "/pricing"},
		{"https://app.example.com", "/"},
		{"https://app.example.com/?utm_source=x", "/"},
		{"//cdn.x.com/posts/1", "/posts/[id]"},
		{"//cdn.x.com", "/"},
		{"///login", "/login"},
		{"/a//b", "/a/b"},
		{"login", "/login"},
		{"/posts/abc123", "/posts/[id]"},
		{"/posts/xyz789", "/posts/[id]"},
		{"/posts/xyz789/", "/posts/[id]"},
		{"/posts/xyz789/edit", "/posts/[id]/edit"},
		{"/posts/new", "/posts/new"},
		{"/posts", "/posts"},
		{"/u/some.handle", "/u/[handle]"},
		{"https://x.io/tags/cats?sort=new", "/tags/[slug]"},
		{"/users/me", "/users/me"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, n.NormalizePath(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeTitle(t *testing.T) {
	n, err := NewNormalizer(DefaultRoutes, DefaultStaticPaths, "Dreamly")
	require.NoError(t, err)

	assert.Nil(t, n.NormalizeTitle(""))
	assert.Nil(t, n.NormalizeTitle("   "))
	assert.Nil(t, n.NormalizeTitle("(not set)"))
	assert.Nil(t, n.NormalizeTitle("Undefined"))
	assert.Nil(t, n.NormalizeTitle(" | Dreamly"))

	got := n.NormalizeTitle("Pricing | Dreamly")
	require.NotNil(t, got)
	assert.Equal(t, "Pricing", *got)
}

func TestNewNormalizerRejectsBadPattern(t *testing.T) {
	_, err := NewNormalizer([]RoutePattern{{Pattern: "(", Template: "x"}}, nil, "")
	assert.Error(t, err)
}

func TestReconstructOrdersDeterministically(t *testing.T) {
	e := NewEngine(nil)

	// Three views share a timestamp; batch fields decide the order.
	same := base
	events := []models.RawPageViewEvent{
		{UserPseudoID: "u", SessionID: sid(1), EventTimestamp: same, PageLocation: "/c", BatchPageID: 2, BatchOrderingID: 1, BatchEventIndex: 0},
		{UserPseudoID: "u", SessionID: sid(1), EventTimestamp: same, PageLocation: "/b", BatchPageID: 1, BatchOrderingID: 2, BatchEventIndex: 0},
		{UserPseudoID: "u", SessionID: sid(1), EventTimestamp: same, PageLocation: "/a", BatchPageID: 1, BatchOrderingID: 1, BatchEventIndex: 5},
		{UserPseudoID: "u", SessionID: sid(1), EventTimestamp: same.Add(-time.Second), PageLocation: "/"},
		{UserPseudoID: "u", SessionID: nil, EventTimestamp: same, PageLocation: "/orphan"},
		{EventName: "click", UserPseudoID: "u", SessionID: sid(1), EventTimestamp: same, PageLocation: "/ignored"},
	}

	got := e.Reconstruct(events)
	require.Len(t, got, 1)
	assert.Equal(t, "u.1", got[0].Key)

	var paths []string
	for _, v := range got[0].Views {
		paths = append(paths, v.CanonicalPath)
	}
	assert.Equal(t, []string{"/", "/a", "/b", "/c"}, paths)
}

func TestLinkNext(t *testing.T) {
	views := []models.NormalizedPageView{{CanonicalPath: "/"}, {CanonicalPath: "/a"}, {CanonicalPath: "/b"}}
	steps := LinkNext(views)
	require.Len(t, steps, 3)
	assert.Equal(t, "/a", steps[0].Next.CanonicalPath)
	assert.Equal(t, "/b", steps[1].Next.CanonicalPath)
	assert.Nil(t, steps[2].Next)
	assert.Equal(t, 3, steps[2].Ordinal)

	assert.Empty(t, LinkNext(nil))
}

func scenarioSessions() []Session {
	e := NewEngine(nil)
	return e.Reconstruct([]models.RawPageViewEvent{
		view("u1", 1, 0, "/"),
		view("u1", 1, 10, "/pricing"),
		view("u2", 2, 0, "/"),
		view("u2", 2, 5, "/login"),
		view("u2", 2, 9, "/pricing"),
	})
}

func TestTransitionScenario(t *testing.T) {
	tracked := NewTrackedSet([]string{"/", "/login", "/pricing"})
	edges := AggregateTransitions(scenarioSessions(), tracked, DefaultLimit)

	require.Len(t, edges, 3)
	assert.Equal(t, []models.TransitionEdge{
		{FromPage: "/", ToPage: "/login", Count: 1, SharePct: 1.0 / 3},
		{FromPage: "/", ToPage: "/pricing", Count: 1, SharePct: 1.0 / 3},
		{FromPage: "/login", ToPage: "/pricing", Count: 1, SharePct: 1.0 / 3},
	}, edges)

	var sum float64
	for _, e := range edges {
		sum += e.SharePct
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestTransitionsSkipSelfLoopsAndUntracked(t *testing.T) {
	e := NewEngine(nil)
	sessions := e.Reconstruct([]models.RawPageViewEvent{
		view("u", 1, 0, "/"),
		view("u", 1, 1, "/"),
		view("u", 1, 2, "/about"),
		view("u", 1, 3, "/pricing"),
	})
	tracked := NewTrackedSet([]string{"/", "/pricing"})
	assert.Empty(t, AggregateTransitions(sessions, tracked, DefaultLimit))
}

func TestRankTransitions(t *testing.T) {
	counts := []TransitionCount{
		{FromPage: "/b", ToPage: "/c", Count: 2},
		{FromPage: "/a", ToPage: "/c", Count: 2},
		{FromPage: "/a", ToPage: "/b", Count: 5},
		{FromPage: "/z", ToPage: "/y", Count: 1},
	}
	edges := RankTransitions(counts, 3)
	require.Len(t, edges, 3)
	assert.Equal(t, "/a", edges[0].FromPage)
	assert.Equal(t, "/b", edges[0].ToPage)
	assert.Equal(t, "/a", edges[1].FromPage)
	assert.Equal(t, "/c", edges[1].ToPage)
	assert.Equal(t, "/b", edges[2].FromPage)
	assert.InDelta(t, 0.5, edges[0].SharePct, 1e-9)

	t.Run("zero total", func(t *testing.T) {
		assert.Empty(t, RankTransitions([]TransitionCount{{FromPage: "/a", ToPage: "/b"}}, 10))
		assert.Empty(t, RankTransitions(nil, 10))
	})
}

func TestDropoffScenario(t *testing.T) {
	tracked := NewTrackedSet([]string{"/", "/login", "/pricing"})
	rows := AggregateDropoffs(scenarioSessions(), tracked, DefaultLimit)

	byPage := map[string]models.DropoffRow{}
	for _, r := range rows {
		byPage[r.Page] = r
	}

	root := byPage["/"]
	assert.Equal(t, uint64(2), root.ReachedSessions)
	assert.Equal(t, uint64(2), root.ContinuedSessions)
	assert.Equal(t, uint64(0), root.DropoffSessions)
	assert.Equal(t, 0.0, root.DropoffRate)

	pricing := byPage["/pricing"]
	assert.Equal(t, uint64(2), pricing.ReachedSessions)
	assert.Equal(t, uint64(2), pricing.DropoffSessions)
	assert.Equal(t, 1.0, pricing.DropoffRate)

	login := byPage["/login"]
	assert.Equal(t, uint64(1), login.ReachedSessions)
	assert.Equal(t, uint64(1), login.ContinuedSessions)

	// pricing has the most drop-offs and sorts first.
	assert.Equal(t, "/pricing", rows[0].Page)
}

func TestDropoffContinuationIsAnyLaterTrackedPage(t *testing.T) {
	e := NewEngine(nil)
	sessions := e.Reconstruct([]models.RawPageViewEvent{
		view("u", 1, 0, "/"),
		view("u", 1, 1, "/about"), // untracked, not adjacent continuation
		view("u", 1, 2, "/"),      // revisiting the same page does not count
		view("u", 1, 3, "/pricing"),
	})
	tracked := NewTrackedSet([]string{"/", "/pricing"})
	rows := AggregateDropoffs(sessions, tracked, DefaultLimit)

	byPage := map[string]models.DropoffRow{}
	for _, r := range rows {
		byPage[r.Page] = r
	}
	assert.Equal(t, uint64(1), byPage["/"].ContinuedSessions)
	assert.Equal(t, uint64(0), byPage["/pricing"].ContinuedSessions)
}

func TestNewDropoffRow(t *testing.T) {
	r := NewDropoffRow("/x", 0, 0)
	assert.Equal(t, 0.0, r.DropoffRate)
	assert.False(t, math.IsNaN(r.DropoffRate))

	r = NewDropoffRow("/x", 10, 3)
	assert.Equal(t, uint64(7), r.DropoffSessions)
	assert.InDelta(t, 0.7, r.DropoffRate, 1e-9)

	// Continued can never exceed reached.
	r = NewDropoffRow("/x", 2, 5)
	assert.Equal(t, uint64(2), r.ContinuedSessions)
	assert.Equal(t, uint64(0), r.DropoffSessions)
}

func TestRankDropoffs(t *testing.T) {
	rows := RankDropoffs([]DropoffCount{
		{Page: "/b", ReachedSessions: 10, ContinuedSessions: 5}, // 5, 0.5
		{Page: "/a", ReachedSessions: 5, ContinuedSessions: 0},  // 5, 1.0
		{Page: "/c", ReachedSessions: 5, ContinuedSessions: 0},  // 5, 1.0
		{Page: "/d", ReachedSessions: 1, ContinuedSessions: 1},  // 0, 0
	}, 3)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"/a", "/c", "/b"}, []string{rows[0].Page, rows[1].Page, rows[2].Page})
}

func TestTopPages(t *testing.T) {
	e := NewEngine(nil)
	events := []models.RawPageViewEvent{
		view("u1", 1, 0, "/posts/a1"),
		view("u1", 1, 1, "/posts/b2"),
		view("u2", 2, 0, "/posts/c3"),
		view("u2", 2, 1, "/"),
		view("u3", 3, 0, "/"),
	}
	events[1].PageTitle = "A post"
	rows := TopPages(e.Reconstruct(events), 10)

	require.Len(t, rows, 2)
	assert.Equal(t, "/posts/[id]", rows[0].Path)
	assert.Equal(t, uint64(3), rows[0].Views)
	assert.Equal(t, uint64(2), rows[0].ActiveUsers)
	require.NotNil(t, rows[0].Title)
	assert.Equal(t, "A post", *rows[0].Title)

	assert.Equal(t, "/", rows[1].Path)
	assert.Equal(t, uint64(2), rows[1].Views)
	assert.Nil(t, rows[1].Title)
}

func TestTopLandingPages(t *testing.T) {
	sessions := scenarioSessions()
	rows := TopLandingPages(sessions, NewTrackedSet([]string{"/login", "/pricing"}), 10)
	require.Len(t, rows, 2)
	assert.Equal(t, models.TopLandingPageRow{LandingPage: "/login", Sessions: 1, ActiveUsers: 1}, rows[0])
	assert.Equal(t, models.TopLandingPageRow{LandingPage: "/pricing", Sessions: 1, ActiveUsers: 1}, rows[1])

	rows = TopLandingPages(sessions, nil, 10)
	require.Len(t, rows, 1)
	assert.Equal(t, "/", rows[0].LandingPage)
	assert.Equal(t, uint64(2), rows[0].Sessions)
}

func TestPlanScan(t *testing.T) {
	now := time.Date(2025, 5, 1, 16, 0, 0, 0, time.UTC)
	b, err := timerange.GetRangeBounds(timerange.Range24h, now)
	require.NoError(t, err)

	s := PlanScan(b, 9*time.Hour, false)
	assert.Equal(t, "20250501", s.DailyFrom)
	assert.Equal(t, "20250502", s.DailyTo)
	assert.False(t, s.IncludesIntraday())
	assert.Equal(t, b.CurrentStart, s.Start)
	assert.Equal(t, now, s.End)

	s = PlanScan(b, 9*time.Hour, true)
	assert.Equal(t, "20250502", s.IntradaySuffix)
}
