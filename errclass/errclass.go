// Package errclass maps upstream failures onto a small, user-facing taxonomy.
package errclass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"google.golang.org/api/googleapi"

	"mabletask/insights/metrics"
	"mabletask/insights/models"
)

type Category string

const (
	APINotEnabled    Category = "api-not-enabled"
	Connectivity     Category = "connectivity"
	PermissionDenied Category = "permission-denied"
	NotFound         Category = "not-found"
	LocationMismatch Category = "location-mismatch"
	Unknown          Category = "unknown"
)

var messages = map[Category]string{
	APINotEnabled:    "The analytics reporting API is not enabled for the configured project. Enable it and reload.",
	Connectivity:     "Could not reach the analytics backend. Please try again in a moment.",
	PermissionDenied: "The analytics credentials do not have permission to read this data.",
	NotFound:         "The configured analytics property, dataset or table was not found.",
	LocationMismatch: "The analytics dataset is in a different location than the one configured.",
	Unknown:          "Analytics data could not be loaded.",
}

// Message is the sanitized text shown for a category.
func (c Category) Message() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return messages[Unknown]
}

// clickhouseCodes names the server error codes the rules care about.
var clickhouseCodes = map[int32]string{
	60:  "UNKNOWN_TABLE",
	81:  "UNKNOWN_DATABASE",
	159: "TIMEOUT_EXCEEDED",
	209: "SOCKET_TIMEOUT",
	497: "ACCESS_DENIED",
	516: "AUTHENTICATION_FAILED",
}

// Failure is the code/message/details triple extracted from an error.
type Failure struct {
	Code    string
	Message string
	Details string
}

func (f Failure) haystack() string {
	return strings.ToLower(f.Code + " " + f.Message + " " + f.Details)
}

// Extract pulls structured fields out of the upstream client errors we know.
func Extract(err error) Failure {
	if err == nil {
		return Failure{}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		reasons := make([]string, 0, len(gerr.Errors))
		for _, item := range gerr.Errors {
			reasons = append(reasons, item.Reason+": "+item.Message)
		}
		return Failure{
			Code:    strconv.Itoa(gerr.Code),
			Message: gerr.Message,
			Details: strings.Join(reasons, "; ") + " " + gerr.Body,
		}
	}

	var chErr *clickhouse.Exception
	if errors.As(err, &chErr) {
		code, ok := clickhouseCodes[chErr.Code]
		if !ok {
			code = chErr.Name
		}
		return Failure{
			Code:    code,
			Message: chErr.Message,
			Details: fmt.Sprintf("clickhouse code %d", chErr.Code),
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Failure{Code: "DEADLINE_EXCEEDED", Message: err.Error()}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Failure{Code: "NETWORK", Message: err.Error()}
	}

	return Failure{Message: err.Error()}
}

type rule struct {
	category Category
	codes    []string
	phrases  []string
}

// rules are evaluated in order; the first match wins. location-mismatch sits
// before not-found because mismatch messages usually also say "not found".
var rules = []rule{
	{
		category: APINotEnabled,
		codes:    []string{"service_disabled", "accessnotconfigured"},
		phrases: []string{
			"service_disabled", "accessnotconfigured", "has not been used in project",
			"api has not been enabled", "it is disabled", "api not enabled",
		},
	},
	{
		category: Connectivity,
		codes:    []string{"deadline_exceeded", "network", "unavailable", "503", "504", "timeout_exceeded", "socket_timeout"},
		phrases: []string{
			"deadline exceeded", "timeout", "timed out", "connection refused", "connection reset",
			"no such host", "econnrefused", "econnreset", "enotfound", "etimedout", "broken pipe",
			"network is unreachable", "unexpected eof",
		},
	},
	{
		category: PermissionDenied,
		codes:    []string{"401", "403", "access_denied", "authentication_failed", "required_password", "not_enough_privileges"},
		phrases: []string{
			"permission_denied", "permission denied", "forbidden", "access denied", "unauthenticated",
			"authentication failed", "insufficient", "not authorized", "not enough privileges",
		},
	},
	{
		category: LocationMismatch,
		phrases: []string{
			"not found in location", "in location", "location mismatch", "different location",
			"region mismatch", "different region", "wrong region",
		},
	},
	{
		category: NotFound,
		codes:    []string{"404", "not_found", "unknown_table", "unknown_database"},
		phrases: []string{
			"not found", "not_found", "does not exist", "doesn't exist", "unknown table", "unknown database",
		},
	},
}

// ClassifyFailure runs the rule list against f.
func ClassifyFailure(f Failure) Category {
	code := strings.ToLower(strings.TrimSpace(f.Code))
	hay := f.haystack()
	for _, r := range rules {
		for _, c := range r.codes {
			if code == c {
				return r.category
			}
		}
		for _, p := range r.phrases {
			if strings.Contains(hay, p) {
				return r.category
			}
		}
	}
	return Unknown
}

// Classify extracts and classifies err. A nil error is Unknown.
func Classify(err error) Category {
	if err == nil {
		return Unknown
	}
	return ClassifyFailure(Extract(err))
}

// ErrorResult logs err in full for operators and returns the sanitized error
// result for the range.
func ErrorResult(rangeKey, operation string, err error) models.DashboardResult {
	category := Classify(err)
	f := Extract(err)
	metrics.ClassifiedErrors.WithLabelValues(string(category)).Inc()

	slog.Error("analytics upstream failure",
		"operation", operation,
		"range", rangeKey,
		"category", string(category),
		"code", f.Code,
		"message", f.Message,
		"details", f.Details,
		"error", err,
	)
	return models.NewDashboardResult(rangeKey, models.StatusError, category.Message())
}
