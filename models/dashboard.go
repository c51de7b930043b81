package models

import "time"

// Status is the outcome of a dashboard resolution.
type Status string

const (
	StatusReady    Status = "ready"
	StatusDisabled Status = "disabled"
	StatusError    Status = "error"
)

// Source names the upstream a result was computed from.
type Source string

const (
	SourceNone      Source = ""
	SourceReporting Source = "reporting"
	SourceWarehouse Source = "warehouse"
)

type TransitionEdge struct {
	FromPage string  `json:"fromPage"`
	ToPage   string  `json:"toPage"`
	Count    uint64  `json:"count"`
	SharePct float64 `json:"sharePct"`
}

// DropoffRow invariants: DropoffSessions = ReachedSessions - ContinuedSessions and
// DropoffRate = DropoffSessions / ReachedSessions, or 0 when nothing was reached.
type DropoffRow struct {
	Page              string  `json:"page"`
	ReachedSessions   uint64  `json:"reachedSessions"`
	ContinuedSessions uint64  `json:"continuedSessions"`
	DropoffSessions   uint64  `json:"dropoffSessions"`
	DropoffRate       float64 `json:"dropoffRate"`
}

type TopPageRow struct {
	Path        string  `json:"path"`
	Title       *string `json:"title,omitempty"`
	Views       uint64  `json:"views"`
	ActiveUsers uint64  `json:"activeUsers"`
}

type TopLandingPageRow struct {
	LandingPage string `json:"landingPage"`
	Sessions    uint64 `json:"sessions"`
	ActiveUsers uint64 `json:"activeUsers"`
}

// DailyCount is one bucket of a zero-seeded per-day series.
type DailyCount struct {
	Date  string `json:"date"`
	Count uint64 `json:"count"`
}

// DashboardResult is what every resolver returns; it never carries a Go error.
type DashboardResult struct {
	Range           string              `json:"range"`
	Status          Status              `json:"status"`
	StatusMessage   string              `json:"statusMessage"`
	Source          Source              `json:"source,omitempty"`
	TopPages        []TopPageRow        `json:"topPages"`
	TopLandingPages []TopLandingPageRow `json:"topLandingPages"`
	TopTransitions  []TransitionEdge    `json:"topTransitions"`
	TopDropoffPages []DropoffRow        `json:"topDropoffPages"`
	DailyViews      []DailyCount        `json:"dailyViews,omitempty"`
	GeneratedAt     time.Time           `json:"generatedAt"`
}

// NewDashboardResult returns a result with every row slice non-nil.
func NewDashboardResult(rangeKey string, status Status, message string) DashboardResult {
	return DashboardResult{
		Range:           rangeKey,
		Status:          status,
		StatusMessage:   message,
		TopPages:        []TopPageRow{},
		TopLandingPages: []TopLandingPageRow{},
		TopTransitions:  []TransitionEdge{},
		TopDropoffPages: []DropoffRow{},
	}
}

// Cacheable reports whether r may be stored: only ready results qualify.
func (r DashboardResult) Cacheable() bool {
	return r.Status == StatusReady
}
