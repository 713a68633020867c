// Package scheduler recomputes the humidity map on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/couchcryptid/era5-humidity-service/internal/domain"
	"github.com/couchcryptid/era5-humidity-service/internal/observability"
)

// Runner executes one humidity run.
type Runner interface {
	Execute(ctx context.Context, params domain.Params) (domain.HumidityMap, error)
}

// ParamsFunc returns the parameters for a run starting now. Re-evaluating it
// per run lets a rolling END_DATE follow the calendar.
type ParamsFunc func() (domain.Params, error)

// Scheduler periodically runs the pipeline with freshly computed params.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	params    ParamsFunc
	interval  time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler. Nothing runs until Start.
func New(runner Runner, params ParamsFunc, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		params:    params,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start schedules the job, running it once immediately. Runs are cancelled
// when ctx is done or Stop is called; overlapping runs are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	jobCtx := s.ctx
	s.mu.Unlock()

	if _, err := s.scheduler.Every(s.interval).Do(func() { s.runOnce(jobCtx) }); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.metrics.SchedulerUp.Set(1)
	s.logger.Info("scheduler started", "interval", s.interval.String())
	return nil
}

// Stop cancels an in-flight run and stops future ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.scheduler.Stop()
	s.metrics.SchedulerUp.Set(0)
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	params, err := s.params()
	if err != nil {
		s.logger.Error("scheduled run skipped", "error", err)
		return
	}

	s.logger.Info("scheduled run starting", "end", params.EndDate.Format(time.DateOnly))
	m, err := s.runner.Execute(ctx, params)
	if err != nil {
		// Execute has already logged and counted the failure.
		s.logger.Warn("scheduled run failed", "error", err)
		return
	}
	s.logger.Info("scheduled run completed", "id", m.ID, "grids", m.GridCount)
}
