package scanrun

import (
	"errors"
	"testing"
	"time"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
)

func newTestRun(t *testing.T) *ScanRun {
	t.Helper()
	run, err := New(shared.NewID(), TriggerManual, "tester")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return run
}

func TestNewRun_Defaults(t *testing.T) {
	run := newTestRun(t)

	if run.Status != StatusPending {
		t.Errorf("Expected status pending, got %s", run.Status)
	}
	if run.Progress != 0 {
		t.Errorf("Expected progress 0, got %d", run.Progress)
	}
	if run.StartedAt != nil {
		t.Error("Expected StartedAt to be nil for a pending run")
	}
	if run.ID.IsZero() {
		t.Error("Expected a non-zero ID")
	}
}

func TestNewRun_RequiresConfiguration(t *testing.T) {
	_, err := New(shared.ID{}, TriggerManual, "")
	if err == nil {
		t.Fatal("Expected error for zero configuration ID, got nil")
	}
	if !shared.IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestNewRun_InvalidTrigger(t *testing.T) {
	_, err := New(shared.NewID(), TriggerType("webhook"), "")
	if err == nil {
		t.Fatal("Expected error for unknown trigger type, got nil")
	}
}

func TestStart_FromPending(t *testing.T) {
	run := newTestRun(t)

	if err := run.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if run.Status != StatusRunning {
		t.Errorf("Expected status running, got %s", run.Status)
	}
	if run.StartedAt == nil {
		t.Error("Expected StartedAt to be set")
	}
}

func TestStart_FromRunning(t *testing.T) {
	run := newTestRun(t)
	run.Start()

	err := run.Start()
	if err == nil {
		t.Fatal("Expected error starting a running run, got nil")
	}
	if !shared.IsConflict(err) {
		t.Errorf("Expected conflict error, got %v", err)
	}
}

func TestRecordProgress_NonDecreasing(t *testing.T) {
	run := newTestRun(t)
	run.Start()

	if err := run.RecordProgress(40, 100, 2); err != nil {
		t.Fatalf("RecordProgress failed: %v", err)
	}
	if run.Progress != 40 {
		t.Errorf("Expected progress 40, got %d", run.Progress)
	}

	// An out-of-order report must not pull any counter backwards.
	if err := run.RecordProgress(25, 50, 1); err != nil {
		t.Fatalf("RecordProgress failed: %v", err)
	}
	if run.Progress != 40 {
		t.Errorf("Expected progress to stay at 40, got %d", run.Progress)
	}
	if run.EntitiesScanned != 100 {
		t.Errorf("Expected entities to stay at 100, got %d", run.EntitiesScanned)
	}
	if run.IssuesFound != 2 {
		t.Errorf("Expected issues to stay at 2, got %d", run.IssuesFound)
	}
}

func TestRecordProgress_ClampsAt100(t *testing.T) {
	run := newTestRun(t)
	run.Start()

	if err := run.RecordProgress(250, 0, 0); err != nil {
		t.Fatalf("RecordProgress failed: %v", err)
	}
	if run.Progress != 100 {
		t.Errorf("Expected progress clamped to 100, got %d", run.Progress)
	}
}

func TestRecordProgress_RejectedWhenNotRunning(t *testing.T) {
	run := newTestRun(t)

	err := run.RecordProgress(10, 0, 0)
	if err == nil {
		t.Fatal("Expected error for progress on a pending run, got nil")
	}
	if !shared.IsConflict(err) {
		t.Errorf("Expected conflict error, got %v", err)
	}
}

func TestComplete_SetsFinalState(t *testing.T) {
	run := newTestRun(t)
	run.Start()
	run.RecordProgress(60, 500, 1)

	if err := run.Complete(1200, 3); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if run.Status != StatusCompleted {
		t.Errorf("Expected status completed, got %s", run.Status)
	}
	if run.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", run.Progress)
	}
	if run.EntitiesScanned != 1200 || run.IssuesFound != 3 {
		t.Errorf("Expected final counts 1200/3, got %d/%d", run.EntitiesScanned, run.IssuesFound)
	}
	if run.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set")
	}
	if run.Duration < 0 {
		t.Errorf("Expected non-negative duration, got %v", run.Duration)
	}
}

func TestComplete_FromPending(t *testing.T) {
	run := newTestRun(t)

	if err := run.Complete(0, 0); err == nil {
		t.Fatal("Expected error completing a pending run, got nil")
	}
}

func TestFail_RecordsSummary(t *testing.T) {
	run := newTestRun(t)
	run.Start()

	if err := run.Fail("connection refused"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if run.Status != StatusFailed {
		t.Errorf("Expected status failed, got %s", run.Status)
	}
	if run.ErrorSummary != "connection refused" {
		t.Errorf("Expected error summary preserved, got %q", run.ErrorSummary)
	}
}

func TestFail_FromPending(t *testing.T) {
	run := newTestRun(t)

	if err := run.Fail("dispatch failed"); err != nil {
		t.Fatalf("Fail from pending failed: %v", err)
	}
	if run.Status != StatusFailed {
		t.Errorf("Expected status failed, got %s", run.Status)
	}
	if run.Duration != 0 {
		t.Errorf("Run that never started should have zero duration, got %v", run.Duration)
	}
}

func TestCancel_FromPendingAndRunning(t *testing.T) {
	pending := newTestRun(t)
	if err := pending.Cancel(); err != nil {
		t.Fatalf("Cancel pending run failed: %v", err)
	}
	if pending.Status != StatusCancelled {
		t.Errorf("Expected status cancelled, got %s", pending.Status)
	}

	running := newTestRun(t)
	running.Start()
	if err := running.Cancel(); err != nil {
		t.Fatalf("Cancel running run failed: %v", err)
	}
	if running.Status != StatusCancelled {
		t.Errorf("Expected status cancelled, got %s", running.Status)
	}
}

func TestCancel_TerminalRunsConflict(t *testing.T) {
	run := newTestRun(t)
	run.Start()
	run.Complete(10, 0)

	err := run.Cancel()
	if err == nil {
		t.Fatal("Expected error cancelling a completed run, got nil")
	}
	var derr *shared.DomainError
	if !errors.As(err, &derr) || derr.Code != "INVALID_TRANSITION" {
		t.Errorf("Expected INVALID_TRANSITION, got %v", err)
	}
}

func TestTerminalStatesAcceptNoTransitions(t *testing.T) {
	for _, status := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		run := newTestRun(t)
		run.Status = status

		if err := run.Start(); err == nil {
			t.Errorf("%s: Start should fail", status)
		}
		if err := run.RecordProgress(50, 0, 0); err == nil {
			t.Errorf("%s: RecordProgress should fail", status)
		}
		if err := run.Complete(0, 0); err == nil {
			t.Errorf("%s: Complete should fail", status)
		}
		if err := run.Fail("x"); err == nil {
			t.Errorf("%s: Fail should fail", status)
		}
	}
}

func TestIsStale(t *testing.T) {
	run := newTestRun(t)
	run.Start()

	grace := 5 * time.Minute
	now := run.LastProgressAt.Add(time.Minute)
	if run.IsStale(now, grace) {
		t.Error("Run within grace should not be stale")
	}

	later := run.LastProgressAt.Add(10 * time.Minute)
	if !run.IsStale(later, grace) {
		t.Error("Run past grace should be stale")
	}

	// Only running runs can be stale.
	run.Cancel()
	if run.IsStale(later, grace) {
		t.Error("Cancelled run should never be stale")
	}
}
