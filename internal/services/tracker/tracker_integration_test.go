package tracker_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/Houeta/price-flow/internal/models"
	"github.com/Houeta/price-flow/internal/repository/sqlite"
	"github.com/Houeta/price-flow/internal/services/tracker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedFetcher returns one scripted price per call for every requested id.
type scriptedFetcher struct {
	prices []decimal.NullDecimal
	calls  int
}

func (f *scriptedFetcher) FetchBatch(_ context.Context, ids []string) ([]models.FetchResult, error) {
	p := f.prices[f.calls]
	at := capturedAt.Add(time.Duration(f.calls) * time.Hour)
	f.calls++

	results := make([]models.FetchResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, models.FetchResult{
			ProductID: id,
			Snapshot:  &models.ProductSnapshot{ProductID: id, CapturedAt: at, Price: p},
		})
	}

	return results, nil
}

func TestTracker_Integration_SequentialRuns(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo, err := sqlite.NewRepository(t.Context(), logger, filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	fetcher := &scriptedFetcher{prices: []decimal.NullDecimal{
		{}, price("-1"), price("120"), price("99.5"), {}, price("130"), price("0"),
	}}
	trk := tracker.NewTracker(logger, fetcher, repo, nil, tracker.Options{BatchSize: 1})

	summary := trk.Add(t.Context(), []string{"P"})
	require.Equal(t, models.StateDone, summary.State)
	require.Equal(t, 1, summary.Inserted)

	expectedMin := []decimal.NullDecimal{{}, price("120"), price("99.5"), price("99.5"), price("99.5"), price("0")}
	expectedUnavailable := []bool{true, false, false, false, false, false}

	for run := range expectedMin {
		summary = trk.Poll(t.Context(), nil)
		require.Equal(t, models.StateDone, summary.State, "run %d", run)

		records, getErr := repo.GetRecords(t.Context(), []string{"P"})
		require.NoError(t, getErr)
		require.Len(t, records, 1)

		assert.Equal(t, expectedMin[run].Valid, records[0].MinPrice.Valid, "run %d", run)
		if expectedMin[run].Valid {
			assert.True(t, expectedMin[run].Decimal.Equal(records[0].MinPrice.Decimal), "run %d", run)
		}
		assert.Equal(t, expectedUnavailable[run], records[0].Unavailable, "run %d", run)
	}

	history, err := repo.GetHistory(t.Context(), "P")
	require.NoError(t, err)
	assert.Len(t, history, len(fetcher.prices))

	summary = trk.Repair(t.Context())
	assert.Equal(t, models.StateDone, summary.State)
	assert.Zero(t, summary.Repaired, "cache must agree with history after successful runs")

	summary = trk.Delete(t.Context(), []string{"P", "Q"})
	assert.Equal(t, 1, summary.Deleted)
	assert.Equal(t, 1, summary.NotFound)

	history, err = repo.GetHistory(t.Context(), "P")
	require.NoError(t, err)
	assert.Empty(t, history)
}
