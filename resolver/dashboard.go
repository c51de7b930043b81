package resolver

import (
	"context"

	"golang.org/x/sync/errgroup"

	"mabletask/insights/cache"
	"mabletask/insights/config"
	"mabletask/insights/errclass"
	"mabletask/insights/models"
	"mabletask/insights/timerange"
)

// Dashboard joins pages and funnel into one result and also serves the daily
// page-view series. Every method returns a result, never an error.
type Dashboard struct {
	deps   Deps
	pages  *PagesResolver
	funnel *FunnelResolver
}

func NewDashboard(d Deps) *Dashboard {
	d = d.withDefaults()
	return &Dashboard{
		deps:   d,
		pages:  NewPagesResolver(d),
		funnel: NewFunnelResolver(d),
	}
}

func dashboardKey(r timerange.Range) string { return "dashboard:" + string(r) }
func dailyKey(r timerange.Range) string     { return "daily:" + string(r) }

func (d *Dashboard) Capabilities() config.Capabilities {
	return d.deps.Capabilities()
}

func (d *Dashboard) ResolvePages(ctx context.Context, r timerange.Range) models.DashboardResult {
	return d.pages.Resolve(ctx, r)
}

func (d *Dashboard) ResolveFunnel(ctx context.Context, r timerange.Range) models.DashboardResult {
	return d.funnel.Resolve(ctx, r)
}

func (d *Dashboard) Resolve(ctx context.Context, r timerange.Range) models.DashboardResult {
	res, err := d.deps.Cache.Resolve(ctx, dashboardKey(r), func(ctx context.Context) (models.DashboardResult, error) {
		var pages, funnel models.DashboardResult
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			pages = d.pages.Resolve(gctx, r)
			return nil
		})
		g.Go(func() error {
			funnel = d.funnel.Resolve(gctx, r)
			return nil
		})
		_ = g.Wait()
		return d.merge(r, pages, funnel), nil
	})
	if err != nil {
		return errclass.ErrorResult(string(r), "dashboard", err)
	}
	return res
}

// merge combines the halves. An error in either wins; both disabled is
// disabled; otherwise the result is ready and a disabled half contributes its
// setup message.
func (d *Dashboard) merge(r timerange.Range, pages, funnel models.DashboardResult) models.DashboardResult {
	var res models.DashboardResult
	switch {
	case pages.Status == models.StatusError:
		res = models.NewDashboardResult(string(r), models.StatusError, pages.StatusMessage)
	case funnel.Status == models.StatusError:
		res = models.NewDashboardResult(string(r), models.StatusError, funnel.StatusMessage)
	case pages.Status == models.StatusDisabled && funnel.Status == models.StatusDisabled:
		return models.NewDashboardResult(string(r), models.StatusDisabled, pages.StatusMessage)
	default:
		res = d.deps.ready(r, pages.Source)
		if pages.Status == models.StatusDisabled {
			res.StatusMessage = pages.StatusMessage
		} else if funnel.Status == models.StatusDisabled {
			res.StatusMessage = funnel.StatusMessage
		}
	}

	if pages.Status == models.StatusReady {
		res.Source = pages.Source
		res.TopPages = pages.TopPages
		res.TopLandingPages = pages.TopLandingPages
	}
	if funnel.Status == models.StatusReady {
		res.TopTransitions = funnel.TopTransitions
		res.TopDropoffPages = funnel.TopDropoffPages
	}
	return res
}

// ResolveDailyViews returns page views per day of the window, zero-filled.
// It needs the warehouse.
func (d *Dashboard) ResolveDailyViews(ctx context.Context, r timerange.Range) models.DashboardResult {
	if d.deps.Warehouse == nil {
		return models.NewDashboardResult(string(r), models.StatusDisabled, FunnelSetupMessage)
	}
	res, err := d.deps.Cache.Resolve(ctx, dailyKey(r), func(ctx context.Context) (models.DashboardResult, error) {
		return d.dailyViews(ctx, r), nil
	})
	if err != nil {
		return errclass.ErrorResult(string(r), "daily_views", err)
	}
	return res
}

func (d *Dashboard) dailyViews(ctx context.Context, r timerange.Range) models.DashboardResult {
	b, err := timerange.GetRangeBounds(r, d.deps.Now())
	if err != nil {
		return errclass.ErrorResult(string(r), "daily_views", err)
	}
	scan, err := d.deps.planScan(ctx, b)
	if err != nil {
		return errclass.ErrorResult(string(r), "daily_views", err)
	}
	counts, err := d.deps.Warehouse.DailyViews(ctx, scan)
	if err != nil {
		return errclass.ErrorResult(string(r), "daily_views", err)
	}

	keys := timerange.EnumerateDateKeys(b.CurrentStart, b.Now, d.deps.Offset)
	buckets := timerange.SeedDailyBuckets(keys)
	for day, n := range counts {
		if _, ok := buckets[day]; ok {
			buckets[day] += n
		}
	}

	res := d.deps.ready(r, models.SourceWarehouse)
	res.DailyViews = make([]models.DailyCount, 0, len(keys))
	for _, k := range keys {
		res.DailyViews = append(res.DailyViews, models.DailyCount{Date: k, Count: buckets[k]})
	}
	return res
}

// Stats exposes the shared cache counters.
func (d *Dashboard) Stats() cache.Stats {
	return d.deps.Cache.Stats()
}
