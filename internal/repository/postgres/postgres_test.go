package postgres_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/Houeta/price-flow/internal/models"
	"github.com/Houeta/price-flow/internal/repository"
	"github.com/Houeta/price-flow/internal/repository/postgres"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepo connects to the database named by PT_TEST_POSTGRES_DSN and
// empties the tables. Tests are skipped when the variable is unset.
func newTestRepo(t *testing.T) *postgres.Repository {
	t.Helper()

	dsn := os.Getenv("PT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PT_TEST_POSTGRES_DSN is not set")
	}

	repo, err := postgres.NewRepository(t.Context(), slog.New(slog.DiscardHandler), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	ids, err := repo.GetProductIDs(t.Context())
	require.NoError(t, err)
	_, err = repo.Delete(t.Context(), ids)
	require.NoError(t, err)

	chats, err := repo.GetSubscribedChats(t.Context())
	require.NoError(t, err)
	for _, chat := range chats {
		require.NoError(t, repo.UnsubscribeChat(t.Context(), chat))
	}

	return repo
}

func TestNewRepository_InvalidDSN(t *testing.T) {
	_, err := postgres.NewRepository(t.Context(), slog.New(slog.DiscardHandler), "postgres://invalid host")
	require.Error(t, err)
}

func TestRepository_Integration(t *testing.T) {
	repo := newTestRepo(t)
	ctx := t.Context()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	name := "Phone"

	plan := models.ReconciliationPlan{
		Inserts: []models.ProductRecord{
			{
				ProductID: "100", ProductName: &name,
				MinPrice: decimal.NewNullDecimal(decimal.RequireFromString("1999.50")), UpdatedAt: now,
			},
			{ProductID: "200", Unavailable: true, UpdatedAt: now},
		},
		HistoryAppends: []models.PriceHistoryEntry{
			{ProductID: "100", Price: decimal.NewNullDecimal(decimal.RequireFromString("1999.50")), CapturedAt: now},
			{ProductID: "200", Price: decimal.NewNullDecimal(decimal.NewFromInt(-1)), CapturedAt: now},
		},
	}
	require.NoError(t, repo.ApplyPlan(ctx, plan))

	records, err := repo.GetRecords(ctx, []string{"100", "200", "300"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	all, err := repo.GetAllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Phone", *all[0].ProductName)
	assert.True(t, decimal.RequireFromString("1999.5").Equal(all[0].MinPrice.Decimal))
	assert.False(t, all[1].MinPrice.Valid)
	assert.True(t, all[1].Unavailable)
	assert.True(t, now.Equal(all[0].UpdatedAt))

	history, err := repo.GetHistory(ctx, "200")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Price.Decimal.IsNegative())

	// A history row for an unknown product rolls back the whole plan.
	err = repo.ApplyPlan(ctx, models.ReconciliationPlan{
		Inserts:        []models.ProductRecord{{ProductID: "300", UpdatedAt: now}},
		HistoryAppends: []models.PriceHistoryEntry{{ProductID: "missing", CapturedAt: now}},
	})
	require.ErrorIs(t, err, repository.ErrPersistence)
	records, err = repo.GetRecords(ctx, []string{"300"})
	require.NoError(t, err)
	assert.Empty(t, records)

	deleted, err := repo.Delete(ctx, []string{"100", "missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	history, err = repo.GetHistory(ctx, "100")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSubscriptions_Integration(t *testing.T) {
	repo := newTestRepo(t)
	ctx := t.Context()

	require.NoError(t, repo.SubscribeChat(ctx, 42))
	require.NoError(t, repo.SubscribeChat(ctx, 42))
	require.NoError(t, repo.SubscribeChat(ctx, 7))

	chats, err := repo.GetSubscribedChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 42}, chats)

	require.NoError(t, repo.UnsubscribeChat(ctx, 42))
	chats, err = repo.GetSubscribedChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, chats)
}
