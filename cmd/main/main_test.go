package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Houeta/price-flow/internal/config"
	"github.com/Houeta/price-flow/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	called string
	ids    []string
}

func (f *fakeRunner) summary(mode string, ids []string) *models.RunSummary {
	f.called, f.ids = mode, ids
	return &models.RunSummary{Mode: mode}
}

func (f *fakeRunner) Poll(_ context.Context, ids []string) *models.RunSummary {
	return f.summary(config.ModePoll, ids)
}

func (f *fakeRunner) Add(_ context.Context, ids []string) *models.RunSummary {
	return f.summary(config.ModeAdd, ids)
}

func (f *fakeRunner) Delete(_ context.Context, ids []string) *models.RunSummary {
	return f.summary(config.ModeDelete, ids)
}

func (f *fakeRunner) Repair(_ context.Context) *models.RunSummary {
	return f.summary(config.ModeRepair, nil)
}

func TestExecute(t *testing.T) {
	ids := []string{"1", "2"}

	for _, mode := range []string{config.ModePoll, config.ModeAdd, config.ModeDelete, config.ModeRepair} {
		t.Run(mode, func(t *testing.T) {
			runner := &fakeRunner{}

			summary := execute(t.Context(), runner, mode, ids)

			assert.Equal(t, mode, runner.called)
			assert.Equal(t, mode, summary.Mode)
			if mode != config.ModeRepair {
				assert.Equal(t, ids, runner.ids)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name    string
		summary models.RunSummary
		want    int
	}{
		{name: "done", summary: models.RunSummary{State: models.StateDone}, want: exitOK},
		{name: "done with failures", summary: models.RunSummary{
			State: models.StateDone, Failures: []models.Failure{{Stage: models.StageFetch}},
		}, want: exitOK},
		{name: "failed", summary: models.RunSummary{State: models.StateFailed}, want: exitFailed},
		{name: "no-op", summary: models.RunSummary{State: models.StateDone, NoOp: true}, want: exitFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(&tt.summary))
		})
	}
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	summary := &models.RunSummary{
		RunID:           "run-1",
		Mode:            config.ModePoll,
		State:           models.StateDone,
		StartedAt:       start,
		FinishedAt:      start.Add(1500 * time.Millisecond),
		Requested:       3,
		Fetched:         2,
		FailedFetch:     1,
		Updated:         2,
		HistoryAppended: 2,
		Failures: []models.Failure{
			{Batch: 0, ProductIDs: []string{"3"}, Stage: models.StageFetch, Reason: "parser.fetchItem: not_found"},
		},
		Drops: []models.PriceDrop{
			{ProductID: "1", Previous: decimal.RequireFromString("20"), Current: decimal.RequireFromString("15.5")},
		},
	}

	var buf bytes.Buffer
	printSummary(&buf, summary)
	out := buf.String()

	assert.Contains(t, out, "run run-1: mode=poll state=done duration=1.5s")
	assert.Contains(t, out, "requested=3 fetched=2 failed_fetch=1")
	assert.Contains(t, out, "inserted=0 updated=2 history_appended=2 skipped_existing=0")
	assert.Contains(t, out, "failed batch=0 stage=fetch ids=3: parser.fetchItem: not_found")
	assert.Contains(t, out, "price drop 1: 20.00 -> 15.50")
	assert.NotContains(t, out, "deleted=")
	assert.NotContains(t, out, "reason:")
}

func TestSetupLogger(t *testing.T) {
	for _, env := range []string{envLocal, envDev, envProd} {
		var buf bytes.Buffer
		log := setupLogger(env, &buf)
		require.NotNil(t, log)
		assert.Empty(t, buf.String(), env)
	}

	var buf bytes.Buffer
	setupLogger("staging", &buf)
	assert.Contains(t, buf.String(), "available_envs")
}

func TestLogSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.log")
	sink, closeSink := logSink(config.Log{File: path, MaxSizeMB: 1})
	defer closeSink()

	setupLogger(envDev, sink).Info("hello")

	assert.FileExists(t, path)
}

func TestRun(t *testing.T) {
	t.Setenv("PT_STORAGE_DSN", "")
	t.Setenv("PT_STORAGE_PATH", "")

	t.Run("configuration error", func(t *testing.T) {
		assert.Equal(t, exitConfig, run([]string{"-m", "poll"}))
		assert.Equal(t, exitConfig, run([]string{"-m", "watch", "-d", "x.db"}))
	})

	t.Run("help", func(t *testing.T) {
		assert.Equal(t, exitOK, run([]string{"-h"}))
	})

	t.Run("unreachable store", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "dir", "prices.db")
		assert.Equal(t, exitConfig, run([]string{"-d", path}))
	})

	t.Run("no-op delete", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prices.db")
		assert.Equal(t, exitFailed, run([]string{"-d", path, "-m", "delete", "-p", "100"}))
	})

	t.Run("empty poll", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prices.db")
		metricsFile := filepath.Join(t.TempDir(), "tracker.prom")
		t.Setenv("PT_METRICS_FILE", metricsFile)

		assert.Equal(t, exitOK, run([]string{"-d", path}))
		assert.FileExists(t, metricsFile)
	})
}
