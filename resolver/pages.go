package resolver

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"mabletask/insights/errclass"
	"mabletask/insights/models"
	"mabletask/insights/timerange"
)

// PagesResolver resolves top pages and top landing pages from whichever
// source SelectStrategy picks.
type PagesResolver struct {
	deps Deps
}

func NewPagesResolver(d Deps) *PagesResolver {
	return &PagesResolver{deps: d.withDefaults()}
}

func pagesKey(r timerange.Range, s Strategy) string {
	return fmt.Sprintf("pages:%s:%s", r, s)
}

func (p *PagesResolver) Resolve(ctx context.Context, r timerange.Range) models.DashboardResult {
	strategy := SelectStrategy(r, p.deps.Capabilities())
	if strategy == StrategyDisabled {
		return models.NewDashboardResult(string(r), models.StatusDisabled, PagesSetupMessage)
	}

	res, err := p.deps.Cache.Resolve(ctx, pagesKey(r, strategy), func(ctx context.Context) (models.DashboardResult, error) {
		return p.compute(ctx, r, strategy), nil
	})
	if err != nil {
		return errclass.ErrorResult(string(r), "pages", err)
	}
	return res
}

func (p *PagesResolver) compute(ctx context.Context, r timerange.Range, strategy Strategy) models.DashboardResult {
	b, err := timerange.GetRangeBounds(r, p.deps.Now())
	if err != nil {
		return errclass.ErrorResult(string(r), "pages", err)
	}

	var (
		pages   []models.TopPageRow
		landing []models.TopLandingPageRow
		source  models.Source
	)

	switch strategy {
	case StrategyReporting:
		source = models.SourceReporting
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			pages, err = p.deps.Reporter.TopPages(gctx, b, p.deps.Limit)
			return err
		})
		g.Go(func() error {
			var err error
			landing, err = p.deps.Reporter.TopLandingPages(gctx, b, p.deps.Limit)
			return err
		})
		if err := g.Wait(); err != nil {
			return errclass.ErrorResult(string(r), "pages", err)
		}

	case StrategyWarehouse:
		source = models.SourceWarehouse
		scan, err := p.deps.planScan(ctx, b)
		if err != nil {
			return errclass.ErrorResult(string(r), "pages", err)
		}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			pages, err = p.deps.Warehouse.TopPages(gctx, scan, p.deps.Limit)
			return err
		})
		g.Go(func() error {
			var err error
			landing, err = p.deps.Warehouse.TopLandingPages(gctx, scan, p.deps.TrackedPages, p.deps.Limit)
			return err
		})
		if err := g.Wait(); err != nil {
			return errclass.ErrorResult(string(r), "pages", err)
		}
	}

	res := p.deps.ready(r, source)
	if pages != nil {
		res.TopPages = pages
	}
	if landing != nil {
		res.TopLandingPages = landing
	}
	return res
}
