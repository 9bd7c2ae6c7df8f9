package postgres

import (
	"context"
	"fmt"

	"github.com/Houeta/price-flow/internal/models"
	"github.com/Houeta/price-flow/internal/repository"
	"github.com/jackc/pgx/v5"
)

// AppendHistory appends price history entries atomically.
func (r *Repository) AppendHistory(ctx context.Context, entries []models.PriceHistoryEntry) error {
	const opn = "repository.postgres.AppendHistory"

	if err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return appendHistory(ctx, tx, entries)
	}); err != nil {
		return fmt.Errorf("%s: %w: %w", opn, repository.ErrPersistence, err)
	}

	return nil
}

// GetHistory returns the price history of a product in capture order.
func (r *Repository) GetHistory(ctx context.Context, id string) ([]models.PriceHistoryEntry, error) {
	const opn = "repository.postgres.GetHistory"

	rows, err := r.pool.Query(
		ctx, "SELECT product_id, price::text, captured_at FROM price_history WHERE product_id = $1 ORDER BY captured_at, id", id,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}
	defer rows.Close()

	var entries []models.PriceHistoryEntry
	for rows.Next() {
		var (
			entry models.PriceHistoryEntry
			price *string
		)
		if err = rows.Scan(&entry.ProductID, &price, &entry.CapturedAt); err != nil {
			return nil, fmt.Errorf("%s: failed to scan price history: %w", opn, err)
		}
		if entry.Price, err = parsePrice(price); err != nil {
			return nil, fmt.Errorf("%s: failed to parse price: %w", opn, err)
		}
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows iteration error: %w", opn, err)
	}

	return entries, nil
}

// ApplyPlan writes all records and history entries of the plan in one transaction.
func (r *Repository) ApplyPlan(ctx context.Context, plan models.ReconciliationPlan) error {
	const opn = "repository.postgres.ApplyPlan"

	if plan.IsEmpty() {
		return nil
	}

	if err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := upsertRecords(ctx, tx, plan.Records()); err != nil {
			return err
		}

		return appendHistory(ctx, tx, plan.HistoryAppends)
	}); err != nil {
		return fmt.Errorf("%s: %w: %w", opn, repository.ErrPersistence, err)
	}

	r.log.DebugContext(
		ctx, "Applied reconciliation plan",
		"op", opn,
		"inserted", len(plan.Inserts),
		"updated", len(plan.Updates),
		"history", len(plan.HistoryAppends),
	)

	return nil
}

func appendHistory(ctx context.Context, tx pgx.Tx, entries []models.PriceHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(insertHistory, entry.ProductID, priceArg(entry.Price), entry.CapturedAt)
	}

	results := tx.SendBatch(ctx, batch)
	for _, entry := range entries {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to append history for product %s: %w", entry.ProductID, err)
		}
	}

	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close history batch: %w", err)
	}

	return nil
}
