package store

import (
	"context"
	"fmt"
	"regexp"

	"mabletask/insights/models"
	"mabletask/insights/sessions"
)

// Warehouse is the event warehouse as seen by the resolvers. Implementations
// must apply sessions.Normalizer semantics to page locations.
type Warehouse interface {
	// IntradayExists reports whether today's unfinalized partition exists.
	IntradayExists(ctx context.Context, suffix string) (bool, error)
	// FinalizeIntraday folds intraday partitions older than today into their
	// daily partitions so they stay visible after the day rolls over.
	FinalizeIntraday(ctx context.Context, today string) error

	TransitionCounts(ctx context.Context, scan sessions.Scan, tracked []string) ([]sessions.TransitionCount, error)
	DropoffCounts(ctx context.Context, scan sessions.Scan, tracked []string) ([]sessions.DropoffCount, error)
	TopPages(ctx context.Context, scan sessions.Scan, limit int) ([]models.TopPageRow, error)
	TopLandingPages(ctx context.Context, scan sessions.Scan, tracked []string, limit int) ([]models.TopLandingPageRow, error)
	DailyViews(ctx context.Context, scan sessions.Scan) (map[string]uint64, error)

	// InsertPageViews appends events to the intraday partition of their day,
	// or to the daily partition when that day is already finalized.
	InsertPageViews(ctx context.Context, events []models.RawPageViewEvent) error
}

var suffixRe = regexp.MustCompile(`^[0-9]{8}$`)

func validateSuffix(suffix string) error {
	if !suffixRe.MatchString(suffix) {
		return fmt.Errorf("invalid partition suffix %q", suffix)
	}
	return nil
}
