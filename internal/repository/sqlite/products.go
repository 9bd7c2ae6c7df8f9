package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Houeta/price-flow/internal/models"
	"github.com/Houeta/price-flow/internal/repository"
)

const selectProducts = "SELECT product_id, href, shop, name, min_price, unavailable, updated_at FROM products"

// GetAllRecords returns all stored product records.
func (r *Repository) GetAllRecords(ctx context.Context) ([]models.ProductRecord, error) {
	const opn = "repository.sqlite.GetAllRecords"

	records, err := r.queryRecords(ctx, selectProducts+" ORDER BY product_id")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	return records, nil
}

// GetRecords returns the records stored for ids. Unknown ids are skipped.
func (r *Repository) GetRecords(ctx context.Context, ids []string) ([]models.ProductRecord, error) {
	const opn = "repository.sqlite.GetRecords"

	if len(ids) == 0 {
		return nil, nil
	}

	query := selectProducts + " WHERE product_id IN (" + placeholders(len(ids)) + ")"
	records, err := r.queryRecords(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	return records, nil
}

// GetProductIDs returns the ids of all stored products.
func (r *Repository) GetProductIDs(ctx context.Context) ([]string, error) {
	const opn = "repository.sqlite.GetProductIDs"
	rows, err := r.db.QueryContext(ctx, "SELECT product_id FROM products ORDER BY product_id")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: failed to scan product_id: %w", opn, err)
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows iteration error: %w", opn, err)
	}

	return ids, nil
}

// Upsert inserts or replaces the records atomically.
func (r *Repository) Upsert(ctx context.Context, records []models.ProductRecord) error {
	const opn = "repository.sqlite.Upsert"

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		return upsertRecords(ctx, tx, records)
	})
	if err != nil {
		return fmt.Errorf("%s: %w: %w", opn, repository.ErrPersistence, err)
	}

	return nil
}

// Delete removes the products with the given ids and their history.
func (r *Repository) Delete(ctx context.Context, ids []string) (int64, error) {
	const opn = "repository.sqlite.Delete"

	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx, "DELETE FROM products WHERE product_id IN ("+placeholders(len(ids))+")", stringArgs(ids)...,
		)
		if err != nil {
			return fmt.Errorf("failed to delete products: %w", err)
		}

		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count deleted products: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", opn, repository.ErrPersistence, err)
	}

	r.log.DebugContext(ctx, "Deleted products", "op", opn, "requested", len(ids), "deleted", deleted)

	return deleted, nil
}

func (r *Repository) queryRecords(ctx context.Context, query string, args ...any) ([]models.ProductRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	defer rows.Close()

	var records []models.ProductRecord
	for rows.Next() {
		var rec models.ProductRecord
		if err = rows.Scan(
			&rec.ProductID, &rec.Href, &rec.ShopName, &rec.ProductName, &rec.MinPrice, &rec.Unavailable, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

func upsertRecords(ctx context.Context, tx *sql.Tx, records []models.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO products (product_id, href, shop, name, min_price, unavailable, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_id) DO UPDATE SET
			href = excluded.href,
			shop = excluded.shop,
			name = excluded.name,
			min_price = excluded.min_price,
			unavailable = excluded.unavailable,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err = stmt.ExecContext(
			ctx, rec.ProductID, rec.Href, rec.ShopName, rec.ProductName, rec.MinPrice, rec.Unavailable, rec.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", rec.ProductID, err)
		}
	}

	return nil
}

// inTx runs fn inside a transaction and commits it when fn succeeds.
func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil) //nolint:varnamelen // tx its a default naming for transaction
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after a successful commit only returns sql.ErrTxDone

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}

	return args
}
