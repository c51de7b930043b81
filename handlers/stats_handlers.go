package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"mabletask/insights/cache"
	"mabletask/insights/config"
	"mabletask/insights/models"
	"mabletask/insights/timerange"
)

// DashboardService is what the stats endpoints need from the resolver.
type DashboardService interface {
	Resolve(ctx context.Context, r timerange.Range) models.DashboardResult
	ResolvePages(ctx context.Context, r timerange.Range) models.DashboardResult
	ResolveFunnel(ctx context.Context, r timerange.Range) models.DashboardResult
	ResolveDailyViews(ctx context.Context, r timerange.Range) models.DashboardResult
	Capabilities() config.Capabilities
	Stats() cache.Stats
}

type StatsHandlers struct {
	Service DashboardService
}

func NewStatsHandlers(s DashboardService) *StatsHandlers {
	return &StatsHandlers{Service: s}
}

type resolveFunc func(ctx context.Context, r timerange.Range) models.DashboardResult

// serve parses ?range= and writes the result. The result's own status field
// carries upstream failures, so every resolved request is a 200.
func serve(c *gin.Context, resolve resolveFunc) {
	r, err := timerange.ParseRange(c.Query("range"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Invalid 'range' parameter",
			"ranges": timerange.All,
		})
		return
	}
	c.JSON(http.StatusOK, resolve(c.Request.Context(), r))
}

func (h *StatsHandlers) GetDashboard(c *gin.Context)  { serve(c, h.Service.Resolve) }
func (h *StatsHandlers) GetTopPages(c *gin.Context)   { serve(c, h.Service.ResolvePages) }
func (h *StatsHandlers) GetFunnel(c *gin.Context)     { serve(c, h.Service.ResolveFunnel) }
func (h *StatsHandlers) GetDailyViews(c *gin.Context) { serve(c, h.Service.ResolveDailyViews) }

// Health reports configured sources and cache counters.
func (h *StatsHandlers) Health(c *gin.Context) {
	caps := h.Service.Capabilities()
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"sources": gin.H{
			"reporting": caps.Reporting,
			"warehouse": caps.Warehouse,
		},
		"cache": h.Service.Stats(),
	})
}
