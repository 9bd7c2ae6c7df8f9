package postgres

import (
	"context"
	"fmt"

	"github.com/Houeta/price-flow/internal/models"
	"github.com/Houeta/price-flow/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const selectProducts = "SELECT product_id, href, shop, name, min_price::text, unavailable, updated_at FROM products"

const upsertProduct = `INSERT INTO products (product_id, href, shop, name, min_price, unavailable, updated_at)
	VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7)
	ON CONFLICT (product_id) DO UPDATE SET
		href = EXCLUDED.href,
		shop = EXCLUDED.shop,
		name = EXCLUDED.name,
		min_price = EXCLUDED.min_price,
		unavailable = EXCLUDED.unavailable,
		updated_at = EXCLUDED.updated_at`

const insertHistory = "INSERT INTO price_history (product_id, price, captured_at) VALUES ($1, $2::text::numeric, $3)"

// GetAllRecords returns all stored product records.
func (r *Repository) GetAllRecords(ctx context.Context) ([]models.ProductRecord, error) {
	const opn = "repository.postgres.GetAllRecords"

	records, err := r.queryRecords(ctx, selectProducts+" ORDER BY product_id")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	return records, nil
}

// GetRecords returns the records stored for ids. Unknown ids are skipped.
func (r *Repository) GetRecords(ctx context.Context, ids []string) ([]models.ProductRecord, error) {
	const opn = "repository.postgres.GetRecords"

	if len(ids) == 0 {
		return nil, nil
	}

	records, err := r.queryRecords(ctx, selectProducts+" WHERE product_id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	return records, nil
}

// GetProductIDs returns the ids of all stored products.
func (r *Repository) GetProductIDs(ctx context.Context) ([]string, error) {
	const opn = "repository.postgres.GetProductIDs"

	rows, err := r.pool.Query(ctx, "SELECT product_id FROM products ORDER BY product_id")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opn, err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s: failed to collect product ids: %w", opn, err)
	}

	return ids, nil
}

// Upsert inserts or replaces the records atomically.
func (r *Repository) Upsert(ctx context.Context, records []models.ProductRecord) error {
	const opn = "repository.postgres.Upsert"

	if err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return upsertRecords(ctx, tx, records)
	}); err != nil {
		return fmt.Errorf("%s: %w: %w", opn, repository.ErrPersistence, err)
	}

	return nil
}

// Delete removes the products with the given ids. History rows cascade.
func (r *Repository) Delete(ctx context.Context, ids []string) (int64, error) {
	const opn = "repository.postgres.Delete"

	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.pool.Exec(ctx, "DELETE FROM products WHERE product_id = ANY($1)", ids)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: failed to delete products: %w", opn, repository.ErrPersistence, err)
	}

	r.log.DebugContext(ctx, "Deleted products", "op", opn, "requested", len(ids), "deleted", tag.RowsAffected())

	return tag.RowsAffected(), nil
}

func (r *Repository) queryRecords(ctx context.Context, query string, args ...any) ([]models.ProductRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	defer rows.Close()

	var records []models.ProductRecord
	for rows.Next() {
		var (
			rec      models.ProductRecord
			minPrice *string
		)
		if err = rows.Scan(
			&rec.ProductID, &rec.Href, &rec.ShopName, &rec.ProductName, &minPrice, &rec.Unavailable, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}

		if rec.MinPrice, err = parsePrice(minPrice); err != nil {
			return nil, fmt.Errorf("failed to parse min_price of %s: %w", rec.ProductID, err)
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

func upsertRecords(ctx context.Context, tx pgx.Tx, records []models.ProductRecord) error {
	for _, rec := range records {
		if _, err := tx.Exec(
			ctx, upsertProduct,
			rec.ProductID, rec.Href, rec.ShopName, rec.ProductName, priceArg(rec.MinPrice), rec.Unavailable, rec.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", rec.ProductID, err)
		}
	}

	return nil
}

// priceArg renders a price as NUMERIC text; NULL when absent.
func priceArg(p decimal.NullDecimal) *string {
	if !p.Valid {
		return nil
	}
	s := p.Decimal.String()

	return &s
}

func parsePrice(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}

	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}

	return decimal.NewNullDecimal(d), nil
}
