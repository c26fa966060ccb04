package usecase

import (
	"context"
	"log/slog"
	"time"

	"MindMapService/internal/ports"
)

// Scheduler wires the interval driver with a periodic reading-list refresh.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, log *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, logger: log}
}

// Start registers the refresh job with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		res, err := s.pipeline.ProcessSource(ctx, Options{})
		if s.logger == nil {
			return
		}
		if err != nil {
			s.logger.Warn("scheduled refresh failed", "trigger", trigger, "error", err)
			return
		}
		s.logger.Info("scheduled refresh stored mind map",
			"trigger", trigger,
			"id", res.Snapshot.ID,
			"scraped", res.Summary.SuccessfullyScraped,
			"failed", res.Summary.FailedScrapes)
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
