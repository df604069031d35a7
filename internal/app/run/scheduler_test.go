package run

import (
	"context"
	"testing"
	"time"

	"github.com/seiforesti/data-wave-sub013/internal/app/stream"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanconfig"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanrun"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

func newTestScheduler(batchSize int) (*Scheduler, *MockConfigRepository, *MockRunRepository, *MockExecutor, *stream.Stream) {
	cfgRepo := NewMockConfigRepository()
	runRepo := NewMockRunRepository()
	executor := &MockExecutor{}
	log := logger.NewNop()
	st := stream.New(16, log)
	coordinator := NewCoordinator(runRepo, cfgRepo, executor, st, log)
	s := NewScheduler(cfgRepo, coordinator, st, time.Minute, batchSize, log)
	return s, cfgRepo, runRepo, executor, st
}

func dueConfig(t *testing.T, cfgRepo *MockConfigRepository, name string) *scanconfig.ScanConfiguration {
	t.Helper()
	cfg, err := scanconfig.New(name, 1, scanconfig.ScanTypeFull, scanconfig.Settings{Parallelism: 1})
	if err != nil {
		t.Fatalf("scanconfig.New failed: %v", err)
	}
	if err := cfg.SetSchedule("*/5 * * * *", "UTC", true); err != nil {
		t.Fatalf("SetSchedule failed: %v", err)
	}
	past := time.Now().Add(-time.Minute)
	cfg.Schedule.NextRunAt = &past
	cfgRepo.Create(context.Background(), cfg)
	return cfg
}

func TestScheduler_FiresDueConfiguration(t *testing.T) {
	s, cfgRepo, runRepo, executor, _ := newTestScheduler(50)
	ctx := context.Background()
	cfg := dueConfig(t, cfgRepo, "due scan")

	s.tick(ctx)

	if executor.DispatchCount() != 1 {
		t.Fatalf("Expected 1 dispatch, got %d", executor.DispatchCount())
	}

	runs, _ := runRepo.List(ctx, scanrun.Filter{}, pagination.New(1, 10))
	if len(runs.Data) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs.Data))
	}
	if runs.Data[0].TriggerType != scanrun.TriggerScheduled {
		t.Errorf("Expected trigger type scheduled, got %s", runs.Data[0].TriggerType)
	}
	if runs.Data[0].TriggeredBy != "scheduler" {
		t.Errorf("Expected triggered_by scheduler, got %s", runs.Data[0].TriggeredBy)
	}

	// The schedule advanced past now, so the next tick fires nothing.
	if cfg.Schedule.NextRunAt == nil || !cfg.Schedule.NextRunAt.After(time.Now()) {
		t.Error("Expected the next fire time to be advanced into the future")
	}
	s.tick(ctx)
	if executor.DispatchCount() != 1 {
		t.Errorf("Expected no second dispatch, got %d", executor.DispatchCount())
	}
}

func TestScheduler_ConflictSkipsOccurrence(t *testing.T) {
	s, cfgRepo, runRepo, executor, _ := newTestScheduler(50)
	ctx := context.Background()
	cfg := dueConfig(t, cfgRepo, "busy scan")

	// An active run plus the reject policy declines the trigger.
	active, _ := scanrun.New(cfg.ID, scanrun.TriggerManual, "")
	active.Start()
	runRepo.Create(ctx, active)

	s.tick(ctx)

	if executor.DispatchCount() != 0 {
		t.Errorf("Expected the occurrence to be skipped, got %d dispatches", executor.DispatchCount())
	}
	// The occurrence is skipped, not retried: the schedule still advanced.
	if cfg.Schedule.NextRunAt == nil || !cfg.Schedule.NextRunAt.After(time.Now()) {
		t.Error("Expected the schedule to advance despite the conflict")
	}
}

func TestScheduler_BatchLimit(t *testing.T) {
	s, cfgRepo, _, executor, _ := newTestScheduler(2)
	ctx := context.Background()

	dueConfig(t, cfgRepo, "scan a")
	dueConfig(t, cfgRepo, "scan b")
	dueConfig(t, cfgRepo, "scan c")

	s.tick(ctx)

	if executor.DispatchCount() != 2 {
		t.Errorf("Expected the tick capped at 2 dispatches, got %d", executor.DispatchCount())
	}
}

func TestStaleMonitor_ReportsOncePerEpisode(t *testing.T) {
	cfgRepo := NewMockConfigRepository()
	runRepo := NewMockRunRepository()
	log := logger.NewNop()
	st := stream.New(16, log)
	coordinator := NewCoordinator(runRepo, cfgRepo, &MockExecutor{}, st, log)
	monitor := NewStaleMonitor(coordinator, st, 10*time.Minute, time.Minute, log)
	ctx := context.Background()

	cfg := createConfig(t, cfgRepo, scanconfig.PolicyParallel)
	quiet, _ := scanrun.New(cfg.ID, scanrun.TriggerManual, "")
	quiet.Start()
	quiet.LastProgressAt = time.Now().Add(-time.Hour)
	runRepo.Create(ctx, quiet)

	ch, cancel := st.Subscribe()
	defer cancel()

	monitor.check(ctx)
	monitor.check(ctx)

	var staleEvents int
	for {
		select {
		case evt := <-ch:
			if evt.Type == stream.EventRunStale {
				staleEvents++
			}
			continue
		default:
		}
		break
	}
	if staleEvents != 1 {
		t.Errorf("Expected exactly 1 stale event across repeated checks, got %d", staleEvents)
	}

	// Once progress resumes and stalls again, a new episode is reported.
	quiet.LastProgressAt = time.Now()
	monitor.check(ctx)
	quiet.LastProgressAt = time.Now().Add(-time.Hour)
	monitor.check(ctx)

	staleEvents = 0
	for {
		select {
		case evt := <-ch:
			if evt.Type == stream.EventRunStale {
				staleEvents++
			}
			continue
		default:
		}
		break
	}
	if staleEvents != 1 {
		t.Errorf("Expected a fresh stale event for the new episode, got %d", staleEvents)
	}
}
