package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mabletask/insights/cache"
	"mabletask/insights/config"
	"mabletask/insights/database"
	"mabletask/insights/handlers"
	"mabletask/insights/middleware"
	"mabletask/insights/models"
	"mabletask/insights/reporting"
	"mabletask/insights/resolver"
	"mabletask/insights/sessions"
	"mabletask/insights/store"
)

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal("invalid configuration", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	norm, err := sessions.NewNormalizer(sessions.DefaultRoutes, sessions.DefaultStaticPaths, cfg.AppName)
	if err != nil {
		fatal("invalid route table", err)
	}

	caps := cfg.Capabilities()
	deps := resolver.Deps{
		Cache: cache.New(cache.Config{
			Name:     "dashboard",
			Capacity: cfg.CacheCapacity,
			TTL:      cfg.CacheTTL,
			Timeout:  cfg.QueryTimeout,
		}, models.DashboardResult.Cacheable),
		TrackedPages: cfg.TrackedPages,
		Limit:        cfg.TopLimit,
		Offset:       cfg.TimezoneOffset,
	}

	// --- Event warehouse ---
	if caps.Warehouse {
		switch cfg.WarehouseDriver {
		case config.WarehouseMemory:
			deps.Warehouse = store.NewMemoryStore(sessions.NewEngine(norm), cfg.TimezoneOffset)
			slog.Warn("using in-memory warehouse, data is lost on restart")
		default:
			chClient, err := database.NewClickHouseDB(cfg)
			if err != nil {
				fatal("failed to initialize ClickHouse", err)
			}
			defer chClient.Close()
			deps.Warehouse = store.NewAnalyticsStore(chClient, norm, cfg.TimezoneOffset)
		}
	} else {
		slog.Warn("event warehouse not configured, funnels disabled")
	}

	// --- Reporting API ---
	if caps.Reporting {
		svc, err := database.NewAnalyticsDataService(context.Background(), cfg)
		if err != nil {
			fatal("failed to initialize reporting API client", err)
		}
		deps.Reporter = reporting.NewClient(svc, cfg.ReportingPropertyID, norm, cfg.TimezoneOffset)
	} else {
		slog.Warn("reporting API not configured")
	}

	if cfg.APIKey == "" && cfg.JWTSecret == "" {
		slog.Warn("neither AUTH_DEFAULT nor JWT_SECRET_KEY is set, every /api request will be rejected")
	}

	dash := resolver.NewDashboard(deps)
	r := newRouter(cfg, dash, deps.Warehouse)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("insights API starting", "addr", srv.Addr,
			"reporting", caps.Reporting, "warehouse", caps.Warehouse)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server failed to start", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	slog.Info("server exiting")
}

func newRouter(cfg config.Config, dash *resolver.Dashboard, wh store.Warehouse) *gin.Engine {
	statsHandlers := handlers.NewStatsHandlers(dash)
	trackHandlers := handlers.NewTrackHandlers(wh, cfg.QueryTimeout)
	authHandlers := handlers.NewAuthHandlers(cfg.JWTSecret, cfg.GinMode == gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.CORSMiddleware(cfg.FrontOrigin))

	r.GET("/healthz", statsHandlers.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.POST("/auth/token", middleware.APIKeyRequired(cfg.APIKey), authHandlers.IssueToken)
		api.POST("/auth/logout", authHandlers.Logout)

		protected := api.Group("/")
		protected.Use(middleware.AuthRequired(cfg.APIKey, cfg.JWTSecret))
		{
			protected.POST("/track", trackHandlers.TrackEvent)

			statsGroup := protected.Group("/stats")
			{
				statsGroup.GET("/dashboard", statsHandlers.GetDashboard)
				statsGroup.GET("/top-pages", statsHandlers.GetTopPages)
				statsGroup.GET("/funnel", statsHandlers.GetFunnel)
				statsGroup.GET("/daily-views", statsHandlers.GetDailyViews)
			}
		}
	}
	return r
}
