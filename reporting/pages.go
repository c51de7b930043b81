package reporting

import (
	"context"

	"mabletask/insights/models"
	"mabletask/insights/sessions"
	"mabletask/insights/timerange"
)

// fetchFactor over-fetches so that rows collapsing onto one canonical path
// still leave limit distinct rows.
const fetchFactor = 4

func (c *Client) dateRange(b timerange.Bounds) (string, string) {
	return timerange.ToDateKey(b.CurrentStart, c.offset), timerange.ToDateKey(b.Now, c.offset)
}

// TopPages ranks canonical paths by screen page views over the window's days.
// Views and active users of merged variants are summed.
func (c *Client) TopPages(ctx context.Context, b timerange.Bounds, limit int) ([]models.TopPageRow, error) {
	start, end := c.dateRange(b)
	rows, err := c.RunReport(ctx, "top_pages", Request{
		StartDate:     start,
		EndDate:       end,
		Dimensions:    []string{"pagePath", "pageTitle"},
		Metrics:       []string{"screenPageViews", "activeUsers"},
		OrderByMetric: "screenPageViews",
		Limit:         int64(limit * fetchFactor),
	})
	if err != nil {
		return nil, err
	}

	byPath := make(map[string]*models.TopPageRow)
	order := make([]string, 0, len(rows))
	for _, r := range rows {
		path := c.norm.NormalizePath(r.Dimension(0))
		agg, ok := byPath[path]
		if !ok {
			agg = &models.TopPageRow{Path: path}
			byPath[path] = agg
			order = append(order, path)
		}
		agg.Views += r.Metric(0)
		agg.ActiveUsers += r.Metric(1)
		if agg.Title == nil {
			agg.Title = c.norm.NormalizeTitle(r.Dimension(1))
		}
	}

	out := make([]models.TopPageRow, 0, len(order))
	for _, p := range order {
		out = append(out, *byPath[p])
	}
	sessions.SortTopPages(out)
	return capRows(out, limit), nil
}

// TopLandingPages ranks canonical landing paths by sessions.
func (c *Client) TopLandingPages(ctx context.Context, b timerange.Bounds, limit int) ([]models.TopLandingPageRow, error) {
	start, end := c.dateRange(b)
	rows, err := c.RunReport(ctx, "top_landing_pages", Request{
		StartDate:     start,
		EndDate:       end,
		Dimensions:    []string{"landingPage"},
		Metrics:       []string{"sessions", "activeUsers"},
		OrderByMetric: "sessions",
		Limit:         int64(limit * fetchFactor),
	})
	if err != nil {
		return nil, err
	}

	byPath := make(map[string]*models.TopLandingPageRow)
	order := make([]string, 0, len(rows))
	for _, r := range rows {
		path := c.norm.NormalizePath(r.Dimension(0))
		agg, ok := byPath[path]
		if !ok {
			agg = &models.TopLandingPageRow{LandingPage: path}
			byPath[path] = agg
			order = append(order, path)
		}
		agg.Sessions += r.Metric(0)
		agg.ActiveUsers += r.Metric(1)
	}

	out := make([]models.TopLandingPageRow, 0, len(order))
	for _, p := range order {
		out = append(out, *byPath[p])
	}
	sessions.SortLandingPages(out)
	return capRows(out, limit), nil
}

func capRows[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
