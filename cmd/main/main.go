package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Houeta/price-flow/internal/bot"
	"github.com/Houeta/price-flow/internal/config"
	"github.com/Houeta/price-flow/internal/metrics"
	"github.com/Houeta/price-flow/internal/models"
	"github.com/Houeta/price-flow/internal/parser"
	"github.com/Houeta/price-flow/internal/repository"
	"github.com/Houeta/price-flow/internal/repository/postgres"
	"github.com/Houeta/price-flow/internal/repository/sqlite"
	"github.com/Houeta/price-flow/internal/services/scheduler"
	"github.com/Houeta/price-flow/internal/services/tracker"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Constants for different environment types.
const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

// Process exit codes.
const (
	exitOK     = 0
	exitFailed = 1 // run ended failed, or add/delete had nothing to do
	exitConfig = 2 // bad configuration or unreachable store
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Canceled on interrupt so that running batches can stop between steps.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}

	sink, closeSink := logSink(cfg.Log)
	defer closeSink()
	logger := setupLogger(cfg.Env, sink)

	store, err := openStore(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to open storage", "error", err)
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}
	defer store.Close()

	mtr := metrics.New()
	fetcher := parser.NewParser(logger, parser.Options{
		ItemURL:         cfg.Fetch.ItemURL,
		PriceURL:        cfg.Fetch.PriceURL,
		UserAgent:       cfg.Fetch.UserAgent,
		Timeout:         cfg.Fetch.Timeout,
		RateLimit:       cfg.Fetch.RateLimit,
		Burst:           cfg.Fetch.Burst,
		Workers:         cfg.Workers,
		MaxRetries:      cfg.Fetch.MaxRetries,
		RetryBackoff:    cfg.Fetch.RetryBackoff,
		RetryBackoffMax: cfg.Fetch.RetryBackoffMax,
	}, mtr)
	trk := tracker.NewTracker(logger, fetcher, store, mtr, tracker.Options{
		BatchSize:    cfg.BatchSize,
		Workers:      cfg.Workers,
		BatchTimeout: cfg.Fetch.BatchTimeout,
	})

	if cfg.Mode == config.ModeServe {
		return serve(ctx, logger, cfg, trk, store, mtr)
	}

	summary := execute(ctx, trk, cfg.Mode, cfg.IDs)
	printSummary(os.Stdout, summary)

	if err = mtr.WriteTextfile(cfg.Metrics.File); err != nil {
		logger.Warn("Failed to write metrics textfile", "path", cfg.Metrics.File, "error", err)
	}

	return exitCode(summary)
}

// openStore picks postgres when a DSN is configured and sqlite otherwise.
func openStore(ctx context.Context, log *slog.Logger, cfg *config.Config) (repository.Store, error) {
	if cfg.StorageDSN != "" {
		repo, err := postgres.NewRepository(ctx, log, cfg.StorageDSN)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}

	repo, err := sqlite.NewRepository(ctx, log, cfg.StoragePath)
	if err != nil {
		return nil, err
	}

	return repo, nil
}

type runner interface {
	Poll(ctx context.Context, ids []string) *models.RunSummary
	Add(ctx context.Context, ids []string) *models.RunSummary
	Delete(ctx context.Context, ids []string) *models.RunSummary
	Repair(ctx context.Context) *models.RunSummary
}

// execute runs a one-shot mode.
func execute(ctx context.Context, trk runner, mode string, ids []string) *models.RunSummary {
	switch mode {
	case config.ModeAdd:
		return trk.Add(ctx, ids)
	case config.ModeDelete:
		return trk.Delete(ctx, ids)
	case config.ModeRepair:
		return trk.Repair(ctx)
	default:
		return trk.Poll(ctx, ids)
	}
}

func exitCode(summary *models.RunSummary) int {
	if summary.NoOp || summary.State == models.StateFailed {
		return exitFailed
	}

	return exitOK
}

// serve polls on a schedule until ctx is canceled. The Telegram bot and the
// /metrics endpoint are started only when configured.
func serve(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.Config,
	trk *tracker.Tracker,
	store repository.Store,
	mtr *metrics.Metrics,
) int {
	var notifier scheduler.Notifier

	if cfg.Tg.Token != "" {
		priceBot, err := bot.NewBot(logger, cfg.Tg.Token, cfg.Tg.Timeout, store)
		if err != nil {
			logger.Error("Failed to init bot", "error", err)
			return exitConfig
		}
		notifier = priceBot

		go priceBot.Start()
		defer priceBot.Stop()
	}

	sched, err := scheduler.NewScheduler(logger, cfg.Schedule, trk, notifier)
	if err != nil {
		logger.Error("Failed to init scheduler", "error", err)
		return exitConfig
	}

	if cfg.Metrics.Addr != "" {
		srv := metricsServer(cfg.Metrics.Addr, mtr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err = sched.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler", "error", err)
		return exitConfig
	}

	logger.InfoContext(ctx, "Application started. Press Ctrl+C to stop.", "schedule", cfg.Schedule)

	<-ctx.Done()

	logger.Info("Shutdown signal received. Stopping application...")
	sched.Stop()
	logger.Info("Application stopped gracefully.")

	return exitOK
}

func metricsServer(addr string, mtr *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mtr.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// logSink returns stdout, tee'd to a rotating file when one is configured.
func logSink(cfg config.Log) (io.Writer, func()) {
	if cfg.File == "" {
		return os.Stdout, func() {}
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	return io.MultiWriter(os.Stdout, file), func() { _ = file.Close() }
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string, sink io.Writer) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(sink, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: true,
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(sink, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(sink, &slog.HandlerOptions{
				Level:       slog.LevelWarn,
				ReplaceAttr: dropTime,
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(sink, &slog.HandlerOptions{
				Level:       slog.LevelError,
				ReplaceAttr: dropTime,
			}),
		)

		log.Error(
			"The env parameter was not specified or was invalid. Logging will be minimal, by default.",
			slog.String("available_envs", "local, development, production"))
	}

	return log
}

func dropTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}
