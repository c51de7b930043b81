// Package reporting reads pre-aggregated page metrics from the Google
// Analytics Data API.
package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	analyticsdata "google.golang.org/api/analyticsdata/v1beta"

	"mabletask/insights/metrics"
	"mabletask/insights/sessions"
	"mabletask/insights/utils"
)

const sourceReporting = "reporting"

// Request is one runReport call. Dates are whole days (YYYY-MM-DD).
type Request struct {
	PropertyID    string
	StartDate     string
	EndDate       string
	Dimensions    []string
	Metrics       []string
	OrderByMetric string
	Limit         int64
}

// Row is a report row with metric values already parsed.
type Row struct {
	Dimensions []string
	Metrics    []uint64
}

func (r Row) Dimension(i int) string {
	if i < 0 || i >= len(r.Dimensions) {
		return ""
	}
	return r.Dimensions[i]
}

func (r Row) Metric(i int) uint64 {
	if i < 0 || i >= len(r.Metrics) {
		return 0
	}
	return r.Metrics[i]
}

type Client struct {
	svc        *analyticsdata.Service
	propertyID string
	norm       *sessions.Normalizer
	offset     time.Duration
}

func NewClient(svc *analyticsdata.Service, propertyID string, norm *sessions.Normalizer, offset time.Duration) *Client {
	if norm == nil {
		norm = sessions.DefaultNormalizer()
	}
	return &Client{svc: svc, propertyID: propertyID, norm: norm, offset: offset}
}

func propertyName(id string) string {
	if strings.HasPrefix(id, "properties/") {
		return id
	}
	return "properties/" + id
}

// RunReport executes req. An empty PropertyID falls back to the client's.
func (c *Client) RunReport(ctx context.Context, name string, req Request) ([]Row, error) {
	property := utils.FirstNonEmpty(req.PropertyID, c.propertyID)
	if property == "" {
		return nil, fmt.Errorf("reporting property id is not configured")
	}

	body := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{{StartDate: req.StartDate, EndDate: req.EndDate}},
		Limit:      req.Limit,
	}
	for _, d := range req.Dimensions {
		body.Dimensions = append(body.Dimensions, &analyticsdata.Dimension{Name: d})
	}
	for _, m := range req.Metrics {
		body.Metrics = append(body.Metrics, &analyticsdata.Metric{Name: m})
	}
	if req.OrderByMetric != "" {
		body.OrderBys = []*analyticsdata.OrderBy{{
			Desc:   true,
			Metric: &analyticsdata.MetricOrderBy{MetricName: req.OrderByMetric},
		}}
	}

	started := time.Now()
	resp, err := c.svc.Properties.RunReport(propertyName(property), body).Context(ctx).Do()
	metrics.ObserveUpstream(sourceReporting, name, started, err)
	if err != nil {
		return nil, fmt.Errorf("failed to run %s report: %w", name, err)
	}

	rows := make([]Row, 0, len(resp.Rows))
	for _, r := range resp.Rows {
		if r == nil {
			continue
		}
		row := Row{
			Dimensions: make([]string, len(r.DimensionValues)),
			Metrics:    make([]uint64, len(r.MetricValues)),
		}
		for i, v := range r.DimensionValues {
			if v != nil {
				row.Dimensions[i] = v.Value
			}
		}
		for i, v := range r.MetricValues {
			if v != nil {
				row.Metrics[i] = utils.ParseMetric(v.Value)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
