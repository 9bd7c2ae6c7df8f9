package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/Houeta/price-flow/internal/models"
)

var (
	errNoNewIDs     = errors.New("all requested products are already tracked")
	errNoStoredIDs  = errors.New("none of the requested products is tracked")
	errNoRequestIDs = errors.New("no product ids requested")
)

// Add fetches and inserts the ids that are not stored yet. Stored ids are
// skipped; when nothing is new the run is a no-op.
func (t *Tracker) Add(ctx context.Context, ids []string) *models.RunSummary {
	const opn = "tracker.Add"
	r := t.newRun(ModeAdd)
	log := r.log.With("op", opn)

	ids = uniqueIDs(ids)
	r.summary.Requested = len(ids)
	if len(ids) == 0 {
		return t.noOp(r, errNoRequestIDs)
	}

	stored, err := t.storedIDs(ctx, ids)
	if err != nil {
		return t.failRun(r, models.StageRead, fmt.Errorf("%s: %w", opn, err))
	}

	newIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := stored[id]; !ok {
			newIDs = append(newIDs, id)
		}
	}
	r.summary.SkippedExisting = len(ids) - len(newIDs)

	if len(newIDs) == 0 {
		return t.noOp(r, errNoNewIDs)
	}
	log.InfoContext(ctx, "Adding products", "new", len(newIDs), "skipped_existing", r.summary.SkippedExisting)

	t.processBatches(ctx, r, newIDs)

	return t.finish(r)
}

// Delete removes the stored ids among ids together with their history.
// Unknown ids are counted as not found; when none is stored the run is a no-op.
func (t *Tracker) Delete(ctx context.Context, ids []string) *models.RunSummary {
	const opn = "tracker.Delete"
	r := t.newRun(ModeDelete)
	log := r.log.With("op", opn)

	ids = uniqueIDs(ids)
	r.summary.Requested = len(ids)
	if len(ids) == 0 {
		return t.noOp(r, errNoRequestIDs)
	}

	stored, err := t.storedIDs(ctx, ids)
	if err != nil {
		return t.failRun(r, models.StageRead, fmt.Errorf("%s: %w", opn, err))
	}

	present := make([]string, 0, len(stored))
	for _, id := range ids {
		if _, ok := stored[id]; ok {
			present = append(present, id)
		}
	}
	r.summary.NotFound = len(ids) - len(present)

	if len(present) == 0 {
		return t.noOp(r, errNoStoredIDs)
	}

	r.advance(models.StateCommitting)

	deleted, err := t.repo.Delete(ctx, present)
	if err != nil {
		t.metrics.IncBatchFailure(models.StageCommit)
		return t.failRun(r, models.StageCommit, fmt.Errorf("%s: %w", opn, err))
	}
	r.summary.Deleted = int(deleted)
	log.InfoContext(ctx, "Deleted products", "deleted", deleted, "not_found", r.summary.NotFound)

	return t.finish(r)
}

func (t *Tracker) storedIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	records, err := t.repo.GetRecords(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored products: %w", err)
	}

	stored := make(map[string]struct{}, len(records))
	for _, rec := range records {
		stored[rec.ProductID] = struct{}{}
	}

	return stored, nil
}

func (t *Tracker) noOp(r *run, reason error) *models.RunSummary {
	r.summary.NoOp = true
	r.summary.Reason = reason.Error()
	r.log.Warn("Nothing to do", "reason", r.summary.Reason)

	return t.finish(r)
}
