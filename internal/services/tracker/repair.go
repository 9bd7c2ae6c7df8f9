package tracker

import (
	"context"
	"fmt"

	"github.com/Houeta/price-flow/internal/models"
	"github.com/Houeta/price-flow/internal/services/reconciler"
	"github.com/shopspring/decimal"
)

// Repair recomputes every cached min_price from price history and writes
// back the records that disagree.
func (t *Tracker) Repair(ctx context.Context) *models.RunSummary {
	const opn = "tracker.Repair"
	r := t.newRun(ModeRepair)
	log := r.log.With("op", opn)

	records, err := t.repo.GetAllRecords(ctx)
	if err != nil {
		return t.failRun(r, models.StageRead, fmt.Errorf("%s: failed to list stored products: %w", opn, err))
	}
	r.summary.Requested = len(records)

	r.advance(models.StateReconciling)

	var fixed []models.ProductRecord
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}

		history, histErr := t.repo.GetHistory(ctx, rec.ProductID)
		if histErr != nil {
			log.ErrorContext(ctx, "Failed to read history", "product_id", rec.ProductID, "error", histErr)
			r.summary.Failures = append(r.summary.Failures, models.Failure{
				ProductIDs: []string{rec.ProductID}, Stage: models.StageRead, Reason: histErr.Error(),
			})
			continue
		}

		minPrice := reconciler.MinRealPrice(history)
		if models.SamePrice(minPrice, rec.MinPrice) {
			continue
		}

		log.InfoContext(ctx, "Cached minimum disagrees with history",
			"product_id", rec.ProductID, "cached", priceString(rec.MinPrice), "history", priceString(minPrice))
		rec.MinPrice = minPrice
		rec.UpdatedAt = t.now()
		fixed = append(fixed, rec)
	}

	if len(fixed) > 0 {
		r.advance(models.StateCommitting)
	}

	for i, batch := range chunk(fixed, t.opts.BatchSize) {
		r.batches++
		if err = t.repo.Upsert(ctx, batch); err != nil {
			log.ErrorContext(ctx, "Failed to write repaired records", "batch", i, "error", err)
			ids := make([]string, len(batch))
			for j, rec := range batch {
				ids[j] = rec.ProductID
			}
			t.batchFailed(r, i, ids, models.StageCommit, err, 0)
			continue
		}
		r.committed++
		r.summary.Repaired += len(batch)
	}

	if err = ctx.Err(); err != nil {
		r.interrupted = true
		r.summary.Reason = fmt.Sprintf("interrupted: %v", err)
	}

	return t.finish(r)
}

func priceString(p decimal.NullDecimal) string {
	if !p.Valid {
		return "none"
	}

	return p.Decimal.String()
}
