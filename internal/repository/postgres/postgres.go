// Package postgres is the PostgreSQL storage backend, selected with storage_dsn.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Houeta/price-flow/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores product state in PostgreSQL through a connection pool.
type Repository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

var _ repository.Store = (*Repository)(nil)

// NewRepository connects to dsn, checks the connection and migrates the schema.
func NewRepository(ctx context.Context, log *slog.Logger, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err = initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("DB schema initialization error: %w", err)
	}

	return &Repository{pool: pool, log: log}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const migrationQuery = `
	CREATE TABLE IF NOT EXISTS products (
		product_id TEXT PRIMARY KEY,
		href TEXT,
		shop TEXT,
		name TEXT,
		min_price NUMERIC,
		unavailable BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS price_history (
		id BIGSERIAL PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products (product_id) ON DELETE CASCADE,
		price NUMERIC,
		captured_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_price_history_product ON price_history (product_id);

	CREATE TABLE IF NOT EXISTS subscriptions (
		chat_id BIGINT PRIMARY KEY
	);
	`
	if _, err := pool.Exec(ctx, migrationQuery); err != nil {
		return fmt.Errorf("failed to execute migration query: %w", err)
	}

	return nil
}

// Close releases all pooled connections.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}
