// Package metrics bundles the Prometheus collectors of the tracker.
// All helpers are safe to call on a nil *Metrics.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/Houeta/price-flow/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Product outcome labels.
const (
	OutcomeInserted    = "inserted"
	OutcomeUpdated     = "updated"
	OutcomeHistory     = "history_appended"
	OutcomeSkipped     = "skipped_existing"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeDeleted     = "deleted"
	OutcomeNotFound    = "not_found"
	OutcomeRepaired    = "repaired"
)

// Fetch endpoint and result labels.
const (
	EndpointPrice = "price"
	EndpointItem  = "item"

	ResultOK    = "ok"
	ResultRetry = "retry"
)

// Metrics holds every collector on a dedicated registry.
type Metrics struct {
	Registry      *prometheus.Registry
	Runs          *prometheus.CounterVec
	Products      *prometheus.CounterVec
	BatchFailures *prometheus.CounterVec
	FetchRequests *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
}

// New constructs and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetracker_runs_total",
			Help: "Total tracker runs by mode and final state.",
		},
		[]string{"mode", "state"},
	)
	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetracker_products_total",
			Help: "Products processed by outcome.",
		},
		[]string{"outcome"},
	)
	batchFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetracker_batch_failures_total",
			Help: "Failed batches by the stage they failed in.",
		},
		[]string{"stage"},
	)
	fetchRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetracker_fetch_requests_total",
			Help: "Upstream HTTP requests by endpoint and result.",
		},
		[]string{"endpoint", "result"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricetracker_run_duration_seconds",
			Help:    "Wall time of tracker runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"mode"},
	)

	registry.MustRegister(runs, products, batchFailures, fetchRequests, runDuration)

	return &Metrics{
		Registry:      registry,
		Runs:          runs,
		Products:      products,
		BatchFailures: batchFailures,
		FetchRequests: fetchRequests,
		RunDuration:   runDuration,
	}
}

// IncFetch counts one upstream request.
func (m *Metrics) IncFetch(endpoint, result string) {
	if m == nil {
		return
	}
	m.FetchRequests.WithLabelValues(endpoint, result).Inc()
}

// IncBatchFailure counts one failed batch.
func (m *Metrics) IncBatchFailure(stage string) {
	if m == nil {
		return
	}
	m.BatchFailures.WithLabelValues(stage).Inc()
}

// ObserveRun records the counters of a finished run.
func (m *Metrics) ObserveRun(summary *models.RunSummary) {
	if m == nil || summary == nil {
		return
	}

	m.Runs.WithLabelValues(summary.Mode, summary.State.String()).Inc()
	m.RunDuration.WithLabelValues(summary.Mode).Observe(summary.Duration().Seconds())

	for outcome, n := range map[string]int{
		OutcomeInserted:    summary.Inserted,
		OutcomeUpdated:     summary.Updated,
		OutcomeHistory:     summary.HistoryAppended,
		OutcomeSkipped:     summary.SkippedExisting,
		OutcomeFetchFailed: summary.FailedFetch,
		OutcomeDeleted:     summary.Deleted,
		OutcomeNotFound:    summary.NotFound,
		OutcomeRepaired:    summary.Repaired,
	} {
		if n > 0 {
			m.Products.WithLabelValues(outcome).Add(float64(n))
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}

	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("metrics.WriteTextfile: %w", err)
	}

	return nil
}
