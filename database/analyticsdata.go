package database

import (
	"context"
	"fmt"
	"log/slog"

	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"

	"mabletask/insights/config"
)

// NewAnalyticsDataService builds a Google Analytics Data API client from the
// reporting settings. Without a credentials file, application default
// credentials are used.
func NewAnalyticsDataService(ctx context.Context, cfg config.Config) (*analyticsdata.Service, error) {
	if cfg.ReportingPropertyID == "" {
		return nil, fmt.Errorf("GA_PROPERTY_ID environment variable is not set")
	}

	opts := []option.ClientOption{
		option.WithScopes(analyticsdata.AnalyticsReadonlyScope),
	}
	if cfg.ReportingCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.ReportingCredentialsFile))
	}
	if cfg.ReportingEndpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.ReportingEndpoint))
	}

	svc, err := analyticsdata.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Analytics Data API client: %w", err)
	}

	slog.Info("Analytics Data API client ready", "property", cfg.ReportingPropertyID)
	return svc, nil
}
