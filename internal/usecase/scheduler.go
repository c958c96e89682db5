package usecase

import (
	"context"
	"log/slog"
	"time"

	"NewsGrinder/internal/ports"
)

// Scheduler wires the interval driver with the batch pipeline.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring batches.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.logger.Info("scheduled batch", "trigger", trigger)
		stats, err := s.pipeline.Run(ctx)
		if err != nil {
			s.logger.Warn("scheduled batch stopped", "run_id", stats.RunID, "error", err)
			return
		}
		s.logger.Info("scheduled batch done", "run_id", stats.RunID, "ok", stats.OK, "failed", stats.Failed)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
