package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Houeta/price-flow/internal/models"
	"github.com/Houeta/price-flow/internal/repository"
)

// AppendHistory appends price history entries atomically.
func (r *Repository) AppendHistory(ctx context.Context, entries []models.PriceHistoryEntry) error {
	const opn = "repository.sqlite.AppendHistory"

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		return appendHistory(ctx, tx, entries)
	})
	if err != nil {
		return fmt.Errorf("%s: %w: %w", opn, repository.ErrPersistence, err)
	}

	return nil
}

// GetHistory returns the price history of a product in capture order.
func (r *Repository) GetHistory(ctx context.Context, id string) ([]models.PriceHistoryEntry, error) {
	const opn = "repository.sqlite.GetHistory"
	rows, err := r.db.QueryContext(
		ctx, "SELECT product_id, price, captured_at FROM price_history WHERE product_id = ? ORDER BY captured_at, rowid", id,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}
	defer rows.Close()

	var entries []models.PriceHistoryEntry
	for rows.Next() {
		var entry models.PriceHistoryEntry
		if err = rows.Scan(&entry.ProductID, &entry.Price, &entry.CapturedAt); err != nil {
			return nil, fmt.Errorf("%s: failed to scan price history: %w", opn, err)
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
	const opn = "repository.sqlite.ApplyPlan"

	if plan.IsEmpty() {
		return nil
	}

	// Records go first: history rows reference products.
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertRecords(ctx, tx, plan.Records()); err != nil {
			return err
		}

		return appendHistory(ctx, tx, plan.HistoryAppends)
	})
	if err != nil {
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

func appendHistory(ctx context.Context, tx *sql.Tx, entries []models.PriceHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO price_history (product_id, price, captured_at) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare history statement: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err = stmt.ExecContext(ctx, entry.ProductID, entry.Price, entry.CapturedAt); err != nil {
			return fmt.Errorf("failed to append history for product %s: %w", entry.ProductID, err)
		}
	}

	return nil
}
