package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/Houeta/price-flow/internal/models"
	"github.com/Houeta/price-flow/internal/services/reconciler"
	"golang.org/x/sync/errgroup"
)

var errNoResult = errors.New("no result returned for product")

// Poll fetches and reconciles ids. With no ids every stored product is polled.
func (t *Tracker) Poll(ctx context.Context, ids []string) *models.RunSummary {
	const opn = "tracker.Poll"
	r := t.newRun(ModePoll)
	log := r.log.With("op", opn)

	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		stored, err := t.repo.GetProductIDs(ctx)
		if err != nil {
			return t.failRun(r, models.StageRead, fmt.Errorf("%s: failed to list stored products: %w", opn, err))
		}
		ids = stored
		log.InfoContext(ctx, "Polling all stored products", "count", len(ids))
	}

	r.summary.Requested = len(ids)
	t.processBatches(ctx, r, ids)

	return t.finish(r)
}

// processBatches runs fetch, reconcile and commit for every batch of ids
// on a bounded pool. No new batch starts once ctx is done.
func (t *Tracker) processBatches(ctx context.Context, r *run, ids []string) {
	batches := chunk(ids, t.opts.BatchSize)
	if len(batches) == 0 {
		return
	}

	r.advance(models.StateFetching)

	var group errgroup.Group
	group.SetLimit(t.opts.Workers)

	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}

		r.mu.Lock()
		r.batches++
		r.mu.Unlock()

		group.Go(func() error {
			t.processBatch(ctx, r, i, batch)
			return nil
		})
	}
	_ = group.Wait()

	// A run whose batches all started finishes on its batch outcomes.
	if err := ctx.Err(); err != nil && r.batches < len(batches) {
		r.interrupted = true
		r.summary.Reason = fmt.Sprintf("interrupted after %d of %d batches: %v", r.batches, len(batches), err)
		r.log.WarnContext(ctx, "Run interrupted", "started_batches", r.batches, "batches", len(batches))
	}
}

func (t *Tracker) processBatch(ctx context.Context, r *run, idx int, ids []string) {
	log := r.log.With("op", "tracker.processBatch", "batch", idx)

	fetchCtx := ctx
	if t.opts.BatchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, t.opts.BatchTimeout)
		defer cancel()
	}

	results, err := t.fetcher.FetchBatch(fetchCtx, ids)
	if err != nil {
		log.WarnContext(ctx, "Batch fetch failed", "error", err)
		t.batchFailed(r, idx, ids, models.StageFetch, err, len(ids))
		return
	}

	snapshots, failures := correlate(idx, ids, results)
	r.mu.Lock()
	r.summary.Fetched += len(snapshots)
	r.summary.FailedFetch += len(failures)
	r.summary.Failures = append(r.summary.Failures, failures...)
	r.mu.Unlock()

	if len(snapshots) == 0 {
		log.WarnContext(ctx, "No product of the batch was fetched", "failed", len(failures))
		t.metrics.IncBatchFailure(models.StageFetch)
		r.mu.Lock()
		r.failed++
		r.mu.Unlock()
		return
	}

	r.advance(models.StateReconciling)

	fetchedIDs := make([]string, len(snapshots))
	for i, s := range snapshots {
		fetchedIDs[i] = s.ProductID
	}

	records, err := t.repo.GetRecords(ctx, fetchedIDs)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read stored state", "error", err)
		t.batchFailed(r, idx, fetchedIDs, models.StageRead, err, 0)
		return
	}

	previous := make(map[string]models.ProductRecord, len(records))
	for _, rec := range records {
		previous[rec.ProductID] = rec
	}

	plan, err := reconciler.Reconcile(previous, snapshots)
	if err != nil {
		log.ErrorContext(ctx, "Reconciliation rejected the batch", "error", err)
		t.batchFailed(r, idx, fetchedIDs, models.StageReconcile, err, 0)
		return
	}

	r.advance(models.StateCommitting)

	if err = t.repo.ApplyPlan(ctx, plan); err != nil {
		log.ErrorContext(ctx, "Failed to commit batch", "error", err)
		t.batchFailed(r, idx, fetchedIDs, models.StageCommit, err, 0)
		return
	}

	r.mu.Lock()
	r.committed++
	r.summary.Inserted += len(plan.Inserts)
	r.summary.Updated += len(plan.Updates)
	r.summary.HistoryAppended += len(plan.HistoryAppends)
	r.summary.Drops = append(r.summary.Drops, plan.Drops...)
	r.mu.Unlock()

	log.InfoContext(ctx, "Batch committed",
		"fetched", len(snapshots),
		"inserted", len(plan.Inserts),
		"updated", len(plan.Updates),
		"history", len(plan.HistoryAppends),
	)
}

// batchFailed records a failed batch. failedFetch ids are added to the fetch failure count.
func (t *Tracker) batchFailed(r *run, idx int, ids []string, stage string, err error, failedFetch int) {
	t.metrics.IncBatchFailure(stage)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.failed++
	r.summary.FailedFetch += failedFetch
	r.summary.Failures = append(r.summary.Failures, models.Failure{
		Batch:      idx,
		ProductIDs: ids,
		Stage:      stage,
		Reason:     err.Error(),
	})
}

// correlate matches results to the requested ids by product id, never by position.
// Results for ids that were not requested are ignored.
func correlate(idx int, ids []string, results []models.FetchResult) ([]models.ProductSnapshot, []models.Failure) {
	byID := make(map[string]models.FetchResult, len(results))
	for _, res := range results {
		byID[res.ProductID] = res
	}

	var (
		snapshots []models.ProductSnapshot
		failures  []models.Failure
	)
	for _, id := range ids {
		res, ok := byID[id]
		switch {
		case !ok:
			failures = append(failures, fetchFailure(idx, id, errNoResult))
		case res.Err != nil:
			failures = append(failures, fetchFailure(idx, id, res.Err))
		case res.Snapshot == nil:
			failures = append(failures, fetchFailure(idx, id, errNoResult))
		default:
			snapshot := *res.Snapshot
			snapshot.ProductID = id
			snapshots = append(snapshots, snapshot)
		}
	}

	return snapshots, failures
}

func fetchFailure(idx int, id string, err error) models.Failure {
	return models.Failure{Batch: idx, ProductIDs: []string{id}, Stage: models.StageFetch, Reason: err.Error()}
}
