package run

import (
	"context"
	"time"

	"github.com/seiforesti/data-wave-sub013/internal/app/stream"
	"github.com/seiforesti/data-wave-sub013/internal/metrics"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

// StaleMonitor periodically flags running runs that have not reported
// progress within the grace period. Detection is advisory: a stale run
// is surfaced on the stream and the gauge but is never auto-failed, the
// executor may still come back.
type StaleMonitor struct {
	coordinator *Coordinator
	stream      *stream.Stream
	logger      *logger.Logger

	grace    time.Duration
	interval time.Duration

	// reported de-duplicates stream events per stale episode, keyed by
	// run ID string.
	reported map[string]struct{}

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewStaleMonitor creates a new StaleMonitor.
func NewStaleMonitor(coordinator *Coordinator, st *stream.Stream, grace, interval time.Duration, log *logger.Logger) *StaleMonitor {
	if grace <= 0 {
		grace = 15 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StaleMonitor{
		coordinator: coordinator,
		stream:      st,
		logger:      log.With("service", "stale_monitor"),
		grace:       grace,
		interval:    interval,
		reported:    make(map[string]struct{}),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start runs the check loop until Stop is called or ctx is cancelled.
func (m *StaleMonitor) Start(ctx context.Context) {
	go func() {
		defer close(m.doneCh)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.check(ctx)
			}
		}
	}()
}

// Stop stops the check loop.
func (m *StaleMonitor) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

func (m *StaleMonitor) check(ctx context.Context) {
	stale, err := m.coordinator.StaleRuns(ctx, m.grace)
	if err != nil {
		m.logger.Error("stale check failed", "error", err)
		return
	}

	metrics.StaleRuns.Set(float64(len(stale)))

	current := make(map[string]struct{}, len(stale))
	for _, run := range stale {
		id := run.ID.String()
		current[id] = struct{}{}
		if _, seen := m.reported[id]; seen {
			continue
		}
		m.stream.Publish(stream.EventRunStale, id, map[string]any{
			"last_progress_at": run.LastProgressAt,
			"grace":            m.grace.String(),
		})
		m.logger.Warn("run stale, no progress within grace period",
			"run_id", id,
			"last_progress_at", run.LastProgressAt,
		)
	}
	m.reported = current
}
