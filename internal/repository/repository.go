// Package repository defines the persistence contract used by the tracker.
// Business logic depends on these interfaces only; sqlite and postgres
// provide the implementations.
package repository

import (
	"context"
	"errors"

	"github.com/Houeta/price-flow/internal/models"
)

var (
	// ErrPersistence wraps every failed write so callers can tell storage failures apart.
	ErrPersistence = errors.New("persistence failure")
	// ErrProductNotFound is returned when a product id is unknown to the store.
	ErrProductNotFound = errors.New("product not found")
)

// Gateway is the read/write contract for product state and price history.
// Every write is transactional: a call either fully applies or fully fails.
type Gateway interface {
	// GetAllRecords returns every stored product record.
	GetAllRecords(ctx context.Context) ([]models.ProductRecord, error)
	// GetRecords returns the stored records for ids; unknown ids are skipped.
	GetRecords(ctx context.Context, ids []string) ([]models.ProductRecord, error)
	// GetProductIDs returns the ids of all stored products.
	GetProductIDs(ctx context.Context) ([]string, error)
	// Upsert inserts or replaces records keyed by product id.
	Upsert(ctx context.Context, records []models.ProductRecord) error
	// AppendHistory appends price history entries.
	AppendHistory(ctx context.Context, entries []models.PriceHistoryEntry) error
	// ApplyPlan commits all inserts, updates and history appends of a plan together.
	ApplyPlan(ctx context.Context, plan models.ReconciliationPlan) error
	// Delete removes the given products and returns how many existed.
	Delete(ctx context.Context, ids []string) (int64, error)
	// GetHistory returns the price history of a product in capture order.
	GetHistory(ctx context.Context, id string) ([]models.PriceHistoryEntry, error)
	// Close releases the underlying connection.
	Close() error
}

// Subscriptions stores chats that receive price notifications.
type Subscriptions interface {
	SubscribeChat(ctx context.Context, chatID int64) error
	UnsubscribeChat(ctx context.Context, chatID int64) error
	GetSubscribedChats(ctx context.Context) ([]int64, error)
}

// Store is a full storage backend.
type Store interface {
	Gateway
	Subscriptions
}
