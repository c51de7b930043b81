// Package resolver turns a time range into dashboard results, choosing the
// upstream source per request and coalescing identical requests.
package resolver

import (
	"context"
	"time"

	"mabletask/insights/cache"
	"mabletask/insights/config"
	"mabletask/insights/models"
	"mabletask/insights/sessions"
	"mabletask/insights/store"
	"mabletask/insights/timerange"
)

type Strategy string

const (
	StrategyReporting Strategy = "reporting"
	StrategyWarehouse Strategy = "warehouse"
	StrategyDisabled  Strategy = "disabled"
)

const (
	PagesSetupMessage = "Top pages are not configured for this range. Set GA_PROPERTY_ID for the reporting API; " +
		"the event warehouse only serves sub-day ranges."
	FunnelSetupMessage = "Navigation funnels need the event warehouse. " +
		"Set CLICKHOUSE_HOST and CLICKHOUSE_DB_NAME, or WAREHOUSE_DRIVER=memory."
)

// SelectStrategy picks the source for top pages. Sub-day ranges prefer the
// warehouse since the reporting API only resolves whole days. Whole-day
// ranges are served by the reporting API or not at all.
func SelectStrategy(r timerange.Range, caps config.Capabilities) Strategy {
	switch {
	case r.NeedsSubDayPrecision() && caps.Warehouse:
		return StrategyWarehouse
	case caps.Reporting:
		return StrategyReporting
	default:
		return StrategyDisabled
	}
}

// PageReporter is the pre-aggregated reporting source.
type PageReporter interface {
	TopPages(ctx context.Context, b timerange.Bounds, limit int) ([]models.TopPageRow, error)
	TopLandingPages(ctx context.Context, b timerange.Bounds, limit int) ([]models.TopLandingPageRow, error)
}

// Deps wires the resolvers. A nil Reporter or Warehouse means that source is
// not configured.
type Deps struct {
	Reporter     PageReporter
	Warehouse    store.Warehouse
	Cache        *cache.Coalescer[models.DashboardResult]
	TrackedPages []string
	Limit        int
	Offset       time.Duration
	Now          func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Cache == nil {
		d.Cache = cache.New(cache.Config{Name: "dashboard"}, models.DashboardResult.Cacheable)
	}
	if d.Limit <= 0 {
		d.Limit = sessions.DefaultLimit
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func (d Deps) Capabilities() config.Capabilities {
	return config.Capabilities{
		Reporting: d.Reporter != nil,
		Warehouse: d.Warehouse != nil,
	}
}

// planScan rolls past intraday partitions into daily ones before probing
// today's partition for the scan.
func (d Deps) planScan(ctx context.Context, b timerange.Bounds) (sessions.Scan, error) {
	today := sessions.TodaySuffix(b, d.Offset)
	if err := d.Warehouse.FinalizeIntraday(ctx, today); err != nil {
		return sessions.Scan{}, err
	}
	exists, err := d.Warehouse.IntradayExists(ctx, today)
	if err != nil {
		return sessions.Scan{}, err
	}
	return sessions.PlanScan(b, d.Offset, exists), nil
}

func (d Deps) ready(r timerange.Range, source models.Source) models.DashboardResult {
	res := models.NewDashboardResult(string(r), models.StatusReady, "")
	res.Source = source
	res.GeneratedAt = d.Now().UTC()
	return res
}
