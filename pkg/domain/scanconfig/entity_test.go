package scanconfig

import (
	"testing"
	"time"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
)

func newTestConfig(t *testing.T) *ScanConfiguration {
	t.Helper()
	cfg, err := New("Nightly PII Scan", 42, ScanTypeFull, Settings{
		EnablePIIDetection: true,
		Parallelism:        4,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return cfg
}

func TestNewConfiguration_Defaults(t *testing.T) {
	cfg := newTestConfig(t)

	if cfg.Status != StatusActive {
		t.Errorf("Expected status active, got %s", cfg.Status)
	}
	if cfg.Revision != 1 {
		t.Errorf("Expected revision 1, got %d", cfg.Revision)
	}
	if cfg.ConcurrencyPolicy != PolicyReject {
		t.Errorf("Expected default policy reject, got %s", cfg.ConcurrencyPolicy)
	}
	if cfg.Schedule != nil {
		t.Error("Expected no schedule by default")
	}
}

func TestNewConfiguration_Validation(t *testing.T) {
	if _, err := New("", 1, ScanTypeFull, Settings{Parallelism: 1}); err == nil {
		t.Error("Expected error for empty name")
	}
	if _, err := New("x", 0, ScanTypeFull, Settings{Parallelism: 1}); err == nil {
		t.Error("Expected error for missing data source")
	}
	if _, err := New("x", 1, ScanType("deep"), Settings{Parallelism: 1}); err == nil {
		t.Error("Expected error for unknown scan type")
	}
	if _, err := New("x", 1, ScanTypeFull, Settings{Parallelism: 0}); err == nil {
		t.Error("Expected error for zero parallelism")
	}
}

func TestSetSchedule(t *testing.T) {
	cfg := newTestConfig(t)

	if err := cfg.SetSchedule("0 2 * * *", "UTC", true); err != nil {
		t.Fatalf("SetSchedule failed: %v", err)
	}
	if cfg.Schedule == nil || !cfg.Schedule.Enabled {
		t.Fatal("Expected an enabled schedule")
	}
	if cfg.Schedule.NextRunAt == nil {
		t.Error("Expected NextRunAt to be computed for an active enabled schedule")
	}
}

func TestSetSchedule_InvalidExpression(t *testing.T) {
	cfg := newTestConfig(t)

	if err := cfg.SetSchedule("not a cron", "UTC", true); err == nil {
		t.Fatal("Expected error for invalid cron expression, got nil")
	}
	if err := cfg.SetSchedule("0 2 * * *", "Mars/Olympus", true); err == nil {
		t.Fatal("Expected error for unknown timezone, got nil")
	}
}

func TestSetSchedule_DefaultsTimezoneToUTC(t *testing.T) {
	cfg := newTestConfig(t)

	if err := cfg.SetSchedule("*/5 * * * *", "", true); err != nil {
		t.Fatalf("SetSchedule failed: %v", err)
	}
	if cfg.Schedule.Timezone != "UTC" {
		t.Errorf("Expected timezone UTC, got %s", cfg.Schedule.Timezone)
	}
}

func TestEnableDisableSchedule(t *testing.T) {
	cfg := newTestConfig(t)

	if err := cfg.EnableSchedule(); err == nil {
		t.Error("Expected error enabling a schedule that does not exist")
	}

	cfg.SetSchedule("0 2 * * *", "UTC", false)
	if cfg.Schedule.NextRunAt != nil {
		t.Error("Disabled schedule should have no next fire time")
	}

	if err := cfg.EnableSchedule(); err != nil {
		t.Fatalf("EnableSchedule failed: %v", err)
	}
	if cfg.Schedule.NextRunAt == nil {
		t.Error("Expected NextRunAt after enabling")
	}

	if err := cfg.DisableSchedule(); err != nil {
		t.Fatalf("DisableSchedule failed: %v", err)
	}
	if cfg.Schedule.Enabled || cfg.Schedule.NextRunAt != nil {
		t.Error("Expected schedule disabled with no next fire time")
	}
}

func TestIsDueForExecution(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.SetSchedule("0 2 * * *", "UTC", true)

	next := *cfg.Schedule.NextRunAt
	if cfg.IsDueForExecution(next.Add(-time.Second)) {
		t.Error("Should not be due before the fire time")
	}
	if !cfg.IsDueForExecution(next) {
		t.Error("Should be due at the fire time")
	}
	if !cfg.IsDueForExecution(next.Add(time.Hour)) {
		t.Error("Should still be due after the fire time")
	}

	cfg.Pause()
	if cfg.IsDueForExecution(next.Add(time.Hour)) {
		t.Error("Paused configuration should never be due")
	}
}

func TestPauseAndActivate(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.SetSchedule("0 2 * * *", "UTC", true)

	if err := cfg.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if cfg.Status != StatusPaused {
		t.Errorf("Expected status paused, got %s", cfg.Status)
	}
	if cfg.Schedule.NextRunAt != nil {
		t.Error("Pausing should clear the next fire time")
	}

	// Idempotent.
	if err := cfg.Pause(); err != nil {
		t.Errorf("Pausing a paused configuration should be a no-op, got %v", err)
	}

	if err := cfg.Activate(); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if cfg.Status != StatusActive {
		t.Errorf("Expected status active, got %s", cfg.Status)
	}
	if cfg.Schedule.NextRunAt == nil {
		t.Error("Activating should recompute the next fire time")
	}
}

func TestArchive(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.SetSchedule("0 2 * * *", "UTC", true)

	if err := cfg.Archive(); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if cfg.Status != StatusArchived {
		t.Errorf("Expected status archived, got %s", cfg.Status)
	}
	if cfg.Schedule.Enabled {
		t.Error("Archiving should disable the schedule")
	}

	if err := cfg.Activate(); err == nil {
		t.Error("Expected error activating an archived configuration")
	}
	if err := cfg.Pause(); err == nil {
		t.Error("Expected error pausing an archived configuration")
	}
	if !shared.IsConflict(cfg.Activate()) {
		t.Error("Expected conflict error from Activate on archived configuration")
	}
}

func TestCanTrigger(t *testing.T) {
	cfg := newTestConfig(t)
	if !cfg.CanTrigger() {
		t.Error("Active configuration should be triggerable")
	}
	cfg.Pause()
	if cfg.CanTrigger() {
		t.Error("Paused configuration should not be triggerable")
	}
}

func TestRecordRun(t *testing.T) {
	cfg := newTestConfig(t)
	runID := shared.NewID()

	cfg.RecordRun(runID, "completed")
	cfg.RecordRun(shared.NewID(), "failed")
	cfg.RecordRun(shared.NewID(), "cancelled")

	if cfg.TotalRuns != 3 {
		t.Errorf("Expected 3 total runs, got %d", cfg.TotalRuns)
	}
	if cfg.SuccessfulRuns != 1 {
		t.Errorf("Expected 1 successful run, got %d", cfg.SuccessfulRuns)
	}
	if cfg.FailedRuns != 1 {
		t.Errorf("Expected 1 failed run, got %d", cfg.FailedRuns)
	}
	if cfg.LastRunStatus != "cancelled" {
		t.Errorf("Expected last run status cancelled, got %s", cfg.LastRunStatus)
	}
}

func TestClone(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Scope = Scope{Databases: []string{"sales"}, Schemas: []string{"public"}}
	cfg.SetSchedule("0 2 * * *", "UTC", true)
	cfg.RecordRun(shared.NewID(), "completed")
	cfg.Revision = 7

	clone, err := cfg.Clone("Nightly PII Scan (copy)")
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}

	if clone.ID == cfg.ID {
		t.Error("Clone must get a new ID")
	}
	if clone.Revision != 1 {
		t.Errorf("Clone should start at revision 1, got %d", clone.Revision)
	}
	if clone.TotalRuns != 0 || clone.LastRunID != nil {
		t.Error("Clone should have fresh run statistics")
	}
	if clone.ScanType != cfg.ScanType || clone.DataSourceID != cfg.DataSourceID {
		t.Error("Clone should copy scan type and data source")
	}
	if clone.Schedule == nil || clone.Schedule.Cron != cfg.Schedule.Cron {
		t.Error("Clone should copy the schedule expression")
	}

	// Scope is deep-copied.
	clone.Scope.Databases[0] = "hr"
	if cfg.Scope.Databases[0] != "sales" {
		t.Error("Mutating the clone's scope must not affect the original")
	}
}

func TestClone_RequiresName(t *testing.T) {
	cfg := newTestConfig(t)
	if _, err := cfg.Clone(""); err == nil {
		t.Fatal("Expected error for empty clone name, got nil")
	}
}
