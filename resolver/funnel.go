package resolver

import (
	"context"

	"golang.org/x/sync/errgroup"

	"mabletask/insights/errclass"
	"mabletask/insights/models"
	"mabletask/insights/sessions"
	"mabletask/insights/timerange"
)

// FunnelResolver computes page transitions and drop-off from reconstructed
// warehouse sessions. The reporting API cannot serve it.
type FunnelResolver struct {
	deps Deps
}

func NewFunnelResolver(d Deps) *FunnelResolver {
	return &FunnelResolver{deps: d.withDefaults()}
}

func funnelKey(r timerange.Range) string { return "funnel:" + string(r) }

func (f *FunnelResolver) Resolve(ctx context.Context, r timerange.Range) models.DashboardResult {
	if f.deps.Warehouse == nil {
		return models.NewDashboardResult(string(r), models.StatusDisabled, FunnelSetupMessage)
	}

	res, err := f.deps.Cache.Resolve(ctx, funnelKey(r), func(ctx context.Context) (models.DashboardResult, error) {
		return f.compute(ctx, r), nil
	})
	if err != nil {
		return errclass.ErrorResult(string(r), "funnel", err)
	}
	return res
}

func (f *FunnelResolver) compute(ctx context.Context, r timerange.Range) models.DashboardResult {
	b, err := timerange.GetRangeBounds(r, f.deps.Now())
	if err != nil {
		return errclass.ErrorResult(string(r), "funnel", err)
	}
	scan, err := f.deps.planScan(ctx, b)
	if err != nil {
		return errclass.ErrorResult(string(r), "funnel", err)
	}

	var (
		transitions []sessions.TransitionCount
		dropoffs    []sessions.DropoffCount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		transitions, err = f.deps.Warehouse.TransitionCounts(gctx, scan, f.deps.TrackedPages)
		return err
	})
	g.Go(func() error {
		var err error
		dropoffs, err = f.deps.Warehouse.DropoffCounts(gctx, scan, f.deps.TrackedPages)
		return err
	})
	if err := g.Wait(); err != nil {
		return errclass.ErrorResult(string(r), "funnel", err)
	}

	res := f.deps.ready(r, models.SourceWarehouse)
	res.TopTransitions = sessions.RankTransitions(transitions, f.deps.Limit)
	res.TopDropoffPages = sessions.RankDropoffs(dropoffs, f.deps.Limit)
	return res
}
