// Package metrics exposes Prometheus instrumentation for the bridge: row
// throughput, remote call latency, pagination volume, and duplicate hits.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)

	// RowsSubmitted counts rows accepted by the remote case service.
	RowsSubmitted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "casebridge",
		Name:      "rows_submitted_total",
		Help:      "Rows successfully created in the remote case service.",
	})

	// RowsFailed counts per-row failures by kind (validation vs remote).
	RowsFailed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "casebridge",
		Name:      "rows_failed_total",
		Help:      "Rows that failed submission, by failure kind.",
	}, []string{"kind"})

	// BatchesStarted counts batch runs.
	BatchesStarted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "casebridge",
		Name:      "batches_started_total",
		Help:      "Batches accepted for processing.",
	})

	// PagesFetched counts listing pages retrieved from the remote service.
	PagesFetched = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "casebridge",
		Name:      "pages_fetched_total",
		Help:      "Listing pages retrieved during fetch-all operations.",
	})

	// DuplicatesFlagged counts rows flagged by duplicate detection.
	DuplicatesFlagged = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "casebridge",
		Name:      "duplicates_flagged_total",
		Help:      "Rows flagged as already present in the remote store.",
	})

	// CreateLatency observes remote create-call duration in seconds.
	CreateLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "casebridge",
		Name:      "create_latency_seconds",
		Help:      "Latency of remote case-create calls.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Handler returns the /metrics endpoint handler for the service registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
