// Package scheduler polls the tracked products on a cron schedule and
// forwards price drops to the notifier.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Houeta/price-flow/internal/models"
	"github.com/robfig/cron/v3"
)

// ErrAlreadyRunning is returned by Start on a running scheduler.
var ErrAlreadyRunning = errors.New("scheduler is already running")

// Runner performs a poll run.
type Runner interface {
	Poll(ctx context.Context, ids []string) *models.RunSummary
}

// Notifier delivers price drop alerts.
type Notifier interface {
	NotifyPriceDrops(ctx context.Context, drops []models.PriceDrop) error
}

type Scheduler struct {
	log      *slog.Logger
	spec     string
	runner   Runner
	notifier Notifier

	mu   sync.Mutex
	cron *cron.Cron
}

// NewScheduler validates spec and returns a stopped scheduler. notifier may be nil.
func NewScheduler(log *slog.Logger, spec string, runner Runner, notifier Notifier) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("scheduler.NewScheduler: invalid schedule %q: %w", spec, err)
	}

	return &Scheduler{log: log, spec: spec, runner: runner, notifier: notifier}, nil
}

// Start registers the poll job and starts the cron engine. Runs started by
// the scheduler use ctx, so cancelling it interrupts a poll between batches.
func (s *Scheduler) Start(ctx context.Context) error {
	const opn = "scheduler.Start"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrAlreadyRunning
	}

	logger := cronLogger{log: s.log}
	engine := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		),
	)

	if _, err := engine.AddFunc(s.spec, func() { s.poll(ctx) }); err != nil {
		return fmt.Errorf("%s: failed to register poll job: %w", opn, err)
	}

	engine.Start()
	s.cron = engine
	s.log.Info("Scheduler started", "op", opn, "schedule", s.spec)

	return nil
}

// Stop stops the engine and waits for a running poll to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
	s.cron = nil
	s.log.Info("Scheduler stopped", "op", "scheduler.Stop")
}

// poll runs one scheduled poll over all stored products.
func (s *Scheduler) poll(ctx context.Context) {
	const opn = "scheduler.poll"
	log := s.log.With("op", opn)

	if ctx.Err() != nil {
		log.Warn("Skipping scheduled poll: shutting down")
		return
	}

	summary := s.runner.Poll(ctx, nil)
	if summary == nil {
		return
	}
	log.Info("Scheduled poll finished",
		"run_id", summary.RunID, "state", summary.State.String(), "drops", len(summary.Drops))

	if s.notifier == nil || len(summary.Drops) == 0 {
		return
	}

	if err := s.notifier.NotifyPriceDrops(ctx, summary.Drops); err != nil {
		log.Error("Failed to notify price drops", "error", err)
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
