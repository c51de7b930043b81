// Package metrics holds the Prometheus instruments shared by the cache, the
// upstream clients and the error classifier.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "insights"

var (
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Coalescing cache lookups by cache name and outcome (hit, miss, coalesced).",
	}, []string{"cache", "outcome"})

	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Entries removed by capacity or TTL.",
	}, []string{"cache", "reason"})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "query_duration_seconds",
		Help:      "Duration of upstream queries by source and query name.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"source", "query", "result"})

	ClassifiedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resolver",
		Name:      "errors_total",
		Help:      "Upstream failures by classified category.",
	}, []string{"category"})

	IngestedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "page_views_total",
		Help:      "Page-view events written to the intraday partition.",
	})
)

// ObserveUpstream records how long a query against source took.
func ObserveUpstream(source, query string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	UpstreamDuration.WithLabelValues(source, query, result).Observe(time.Since(started).Seconds())
}
