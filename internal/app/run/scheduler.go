package run

import (
	"context"
	"sync"
	"time"

	"github.com/seiforesti/data-wave-sub013/internal/app/stream"
	"github.com/seiforesti/data-wave-sub013/internal/metrics"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanconfig"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanrun"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

// Scheduler polls for due schedules and fires each one exactly once per
// occurrence. The next fire time is advanced before dispatch so a slow
// trigger cannot fire twice, and an in-flight guard covers overlapping
// ticks.
type Scheduler struct {
	cfgRepo     scanconfig.Repository
	coordinator *Coordinator
	stream      *stream.Stream
	logger      *logger.Logger

	interval  time.Duration
	batchSize int

	// triggering marks configurations with a trigger in flight this
	// tick, keyed by configuration ID string.
	triggering sync.Map

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(cfgRepo scanconfig.Repository, coordinator *Coordinator, st *stream.Stream, interval time.Duration, batchSize int, log *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Scheduler{
		cfgRepo:     cfgRepo,
		coordinator: coordinator,
		stream:      st,
		logger:      log.With("service", "scheduler"),
		interval:    interval,
		batchSize:   batchSize,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start runs the tick loop until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.doneCh)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("scheduler started", "interval", s.interval.String())
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop stops the tick loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	due, err := s.cfgRepo.ListDueForExecution(ctx, now)
	if err != nil {
		s.logger.Error("failed to list due configurations", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}
	if len(due) > s.batchSize {
		due = due[:s.batchSize]
	}

	for _, cfg := range due {
		s.fire(ctx, cfg, now)
	}
}

// fire triggers one due configuration. The schedule is advanced first;
// if the trigger then fails the occurrence is skipped, not retried.
func (s *Scheduler) fire(ctx context.Context, cfg *scanconfig.ScanConfiguration, now time.Time) {
	key := cfg.ID.String()
	if _, loaded := s.triggering.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	defer s.triggering.Delete(key)

	next := cfg.CalculateNextRunAt(now)
	if err := s.cfgRepo.UpdateNextRunAt(ctx, cfg.ID, next); err != nil {
		s.logger.Error("failed to advance schedule", "config_id", key, "error", err)
		return
	}

	run, err := s.coordinator.Trigger(ctx, key, scanrun.TriggerScheduled, "scheduler")
	if err != nil {
		if shared.IsConflict(err) {
			// concurrency policy declined this occurrence
			s.logger.Info("scheduled trigger skipped", "config_id", key, "reason", err.Error())
			return
		}
		s.logger.Error("scheduled trigger failed", "config_id", key, "error", err)
		return
	}

	metrics.ScheduledTriggersTotal.Inc()
	s.stream.Publish(stream.EventScheduleTriggered, run.ID.String(), map[string]any{
		"configuration_id": key,
		"name":             cfg.Name,
	})
	s.logger.Info("scheduled run triggered", "config_id", key, "run_id", run.ID.String())
}
