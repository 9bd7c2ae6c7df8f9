// Package tracker runs tracking cycles: it fetches products in batches,
// reconciles the observations with stored state and commits each batch.
// Failures never escape a run; they are collected in the run summary.
package tracker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Houeta/price-flow/internal/metrics"
	"github.com/Houeta/price-flow/internal/models"
	"github.com/Houeta/price-flow/internal/parser"
	"github.com/Houeta/price-flow/internal/repository"
	"github.com/google/uuid"
)

// Run modes.
const (
	ModePoll   = "poll"
	ModeAdd    = "add"
	ModeDelete = "delete"
	ModeRepair = "repair"
)

const defaultBatchSize = 25

// Options configures batching of a Tracker.
type Options struct {
	BatchSize    int
	Workers      int
	BatchTimeout time.Duration
}

// Tracker is the run orchestrator.
type Tracker struct {
	log     *slog.Logger
	fetcher parser.SnapshotFetcher
	repo    repository.Gateway
	metrics *metrics.Metrics
	opts    Options
	now     func() time.Time
}

// NewTracker creates a new Tracker instance.
func NewTracker(
	log *slog.Logger, fetcher parser.SnapshotFetcher, repo repository.Gateway, m *metrics.Metrics, opts Options,
) *Tracker {
	if opts.BatchSize < 1 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	return &Tracker{
		log:     log,
		fetcher: fetcher,
		repo:    repo,
		metrics: m,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// run is the mutable state of one run. Batches update it concurrently.
type run struct {
	mu      sync.Mutex
	log     *slog.Logger
	summary *models.RunSummary

	batches     int
	committed   int
	failed      int
	interrupted bool
}

func (t *Tracker) newRun(mode string) *run {
	summary := &models.RunSummary{
		RunID:     uuid.NewString(),
		Mode:      mode,
		State:     models.StateIdle,
		StartedAt: t.now(),
	}

	return &run{
		log:     t.log.With("run_id", summary.RunID, "mode", mode),
		summary: summary,
	}
}

// advance moves the run forward to state. States never move backwards.
func (r *run) advance(state models.RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state <= r.summary.State {
		return
	}
	r.log.Debug("Run state changed", "from", r.summary.State.String(), "to", state.String())
	r.summary.State = state
}

func (r *run) fail(failure models.Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.summary.Failures = append(r.summary.Failures, failure)
}

// finish sets the terminal state and records the run.
func (t *Tracker) finish(r *run) *models.RunSummary {
	summary := r.summary
	summary.FinishedAt = t.now()

	if r.committed == 0 && (r.interrupted || (r.batches > 0 && r.failed > 0)) {
		summary.State = models.StateFailed
		if summary.Reason == "" {
			summary.Reason = "no batch was committed"
		}
	} else if summary.State != models.StateFailed {
		summary.State = models.StateDone
	}

	t.metrics.ObserveRun(summary)

	attrs := []any{
		"state", summary.State.String(),
		"duration", summary.Duration(),
		"requested", summary.Requested,
		"fetched", summary.Fetched,
		"failed_fetch", summary.FailedFetch,
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"history_appended", summary.HistoryAppended,
		"failures", len(summary.Failures),
	}
	if summary.State == models.StateFailed {
		r.log.Error("Run failed", append(attrs, "reason", summary.Reason)...)
	} else {
		r.log.Info("Run finished", attrs...)
	}

	return summary
}

// failRun terminates a run that could not start, e.g. because the store is unreadable.
func (t *Tracker) failRun(r *run, stage string, err error) *models.RunSummary {
	r.summary.State = models.StateFailed
	r.summary.Reason = err.Error()
	r.summary.Failures = append(r.summary.Failures, models.Failure{Stage: stage, Reason: err.Error()})

	return t.finish(r)
}

// uniqueIDs drops empty and repeated ids, keeping the first occurrence.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}

// chunk splits items into consecutive batches of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	var batches [][]T
	for size < len(items) {
		items, batches = items[size:], append(batches, items[:size:size])
	}
	if len(items) > 0 {
		batches = append(batches, items)
	}

	return batches
}
