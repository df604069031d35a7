package run

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/seiforesti/data-wave-sub013/internal/app/stream"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanconfig"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanrun"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

// MockExecutor implements Executor for testing.
type MockExecutor struct {
	mu          sync.Mutex
	dispatched  []shared.ID
	cancelled   []shared.ID
	dispatchErr error
}

func (m *MockExecutor) Dispatch(ctx context.Context, run *scanrun.ScanRun, cfg *scanconfig.ScanConfiguration) error {
	if m.dispatchErr != nil {
		return m.dispatchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatched = append(m.dispatched, run.ID)
	return nil
}

func (m *MockExecutor) Cancel(ctx context.Context, runID shared.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, runID)
	return nil
}

func (m *MockExecutor) DispatchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dispatched)
}

func (m *MockExecutor) CancelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cancelled)
}

// MockConfigRepository implements scanconfig.Repository for testing.
type MockConfigRepository struct {
	mu       sync.RWMutex
	configs  map[string]*scanconfig.ScanConfiguration
	recorded map[string]string // run ID -> terminal status
}

func NewMockConfigRepository() *MockConfigRepository {
	return &MockConfigRepository{
		configs:  make(map[string]*scanconfig.ScanConfiguration),
		recorded: make(map[string]string),
	}
}

func (m *MockConfigRepository) Create(ctx context.Context, cfg *scanconfig.ScanConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.ID.String()] = cfg
	return nil
}

func (m *MockConfigRepository) GetByID(ctx context.Context, id shared.ID) (*scanconfig.ScanConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if cfg, ok := m.configs[id.String()]; ok {
		return cfg, nil
	}
	return nil, shared.ErrNotFound
}

func (m *MockConfigRepository) GetByName(ctx context.Context, name string) (*scanconfig.ScanConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cfg := range m.configs {
		if cfg.Name == name {
			return cfg, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *MockConfigRepository) List(ctx context.Context, filter scanconfig.Filter, page pagination.Pagination) (pagination.Result[*scanconfig.ScanConfiguration], error) {
	return pagination.Result[*scanconfig.ScanConfiguration]{}, nil
}

func (m *MockConfigRepository) Update(ctx context.Context, cfg *scanconfig.ScanConfiguration, expectedRevision int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.ID.String()] = cfg
	return nil
}

func (m *MockConfigRepository) ListDueForExecution(ctx context.Context, now time.Time) ([]*scanconfig.ScanConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []*scanconfig.ScanConfiguration
	for _, cfg := range m.configs {
		if cfg.IsDueForExecution(now) {
			due = append(due, cfg)
		}
	}
	return due, nil
}

func (m *MockConfigRepository) UpdateNextRunAt(ctx context.Context, id shared.ID, nextRunAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.configs[id.String()]; ok && cfg.Schedule != nil {
		cfg.Schedule.NextRunAt = nextRunAt
	}
	return nil
}

func (m *MockConfigRepository) RecordRun(ctx context.Context, id shared.ID, runID shared.ID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded[runID.String()] = status
	if cfg, ok := m.configs[id.String()]; ok {
		cfg.RecordRun(runID, status)
	}
	return nil
}

func (m *MockConfigRepository) GetStats(ctx context.Context) (*scanconfig.Stats, error) {
	return &scanconfig.Stats{}, nil
}

func (m *MockConfigRepository) RecordedStatus(runID shared.ID) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recorded[runID.String()]
}

// MockRunRepository implements scanrun.Repository for testing.
type MockRunRepository struct {
	mu   sync.RWMutex
	runs map[string]*scanrun.ScanRun
}

func NewMockRunRepository() *MockRunRepository {
	return &MockRunRepository{runs: make(map[string]*scanrun.ScanRun)}
}

func (m *MockRunRepository) Create(ctx context.Context, run *scanrun.ScanRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID.String()] = run
	return nil
}

func (m *MockRunRepository) GetByID(ctx context.Context, id shared.ID) (*scanrun.ScanRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if run, ok := m.runs[id.String()]; ok {
		return run, nil
	}
	return nil, shared.ErrNotFound
}

func (m *MockRunRepository) List(ctx context.Context, filter scanrun.Filter, page pagination.Pagination) (pagination.Result[*scanrun.ScanRun], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []*scanrun.ScanRun
	for _, run := range m.runs {
		items = append(items, run)
	}
	return pagination.NewResult(items, int64(len(items)), page), nil
}

func (m *MockRunRepository) Update(ctx context.Context, run *scanrun.ScanRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID.String()] = run
	return nil
}

func (m *MockRunRepository) CountActiveByConfiguration(ctx context.Context, configurationID shared.ID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, run := range m.runs {
		if run.ConfigurationID == configurationID && !run.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (m *MockRunRepository) ListActive(ctx context.Context) ([]*scanrun.ScanRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var active []*scanrun.ScanRun
	for _, run := range m.runs {
		if !run.Status.IsTerminal() {
			active = append(active, run)
		}
	}
	return active, nil
}

func newTestCoordinator() (*Coordinator, *MockConfigRepository, *MockRunRepository, *MockExecutor) {
	cfgRepo := NewMockConfigRepository()
	runRepo := NewMockRunRepository()
	executor := &MockExecutor{}
	st := stream.New(16, logger.NewNop())
	c := NewCoordinator(runRepo, cfgRepo, executor, st, logger.NewNop())
	return c, cfgRepo, runRepo, executor
}

func createConfig(t *testing.T, cfgRepo *MockConfigRepository, policy scanconfig.ConcurrencyPolicy) *scanconfig.ScanConfiguration {
	t.Helper()
	cfg, err := scanconfig.New("test scan", 1, scanconfig.ScanTypeFull, scanconfig.Settings{Parallelism: 1})
	if err != nil {
		t.Fatalf("scanconfig.New failed: %v", err)
	}
	cfg.ConcurrencyPolicy = policy
	cfgRepo.Create(context.Background(), cfg)
	return cfg
}

func TestTrigger_DispatchesRun(t *testing.T) {
	c, cfgRepo, runRepo, executor := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyReject)

	run, err := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "alice")
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	if run.Status != scanrun.StatusPending {
		t.Errorf("Expected status pending, got %s", run.Status)
	}
	if run.TriggeredBy != "alice" {
		t.Errorf("Expected triggered_by alice, got %s", run.TriggeredBy)
	}
	if executor.DispatchCount() != 1 {
		t.Errorf("Expected 1 dispatch, got %d", executor.DispatchCount())
	}
	if len(runRepo.runs) != 1 {
		t.Errorf("Expected 1 run in repo, got %d", len(runRepo.runs))
	}
}

func TestTrigger_InactiveConfiguration(t *testing.T) {
	c, cfgRepo, _, _ := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyReject)
	cfg.Pause()

	_, err := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")
	if err == nil {
		t.Fatal("Expected error triggering a paused configuration, got nil")
	}
	if !shared.IsConflict(err) {
		t.Errorf("Expected conflict error, got %v", err)
	}
}

func TestTrigger_RejectPolicy(t *testing.T) {
	c, cfgRepo, _, executor := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyReject)

	if _, err := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, ""); err != nil {
		t.Fatalf("first Trigger failed: %v", err)
	}

	_, err := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")
	if err == nil {
		t.Fatal("Expected conflict for second trigger under reject policy, got nil")
	}
	if !shared.IsConflict(err) {
		t.Errorf("Expected conflict error, got %v", err)
	}
	if executor.DispatchCount() != 1 {
		t.Errorf("Expected only the first run dispatched, got %d", executor.DispatchCount())
	}
}

func TestTrigger_ParallelPolicy(t *testing.T) {
	c, cfgRepo, _, executor := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyParallel)

	for i := 0; i < 3; i++ {
		if _, err := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, ""); err != nil {
			t.Fatalf("Trigger %d failed: %v", i, err)
		}
	}
	if executor.DispatchCount() != 3 {
		t.Errorf("Expected 3 dispatches, got %d", executor.DispatchCount())
	}
}

func TestTrigger_QueuePolicy(t *testing.T) {
	c, cfgRepo, _, executor := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyQueue)

	first, err := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")
	if err != nil {
		t.Fatalf("first Trigger failed: %v", err)
	}

	queued, err := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")
	if err != nil {
		t.Fatalf("second Trigger failed: %v", err)
	}
	if queued.Status != scanrun.StatusPending {
		t.Errorf("Expected queued run pending, got %s", queued.Status)
	}
	if executor.DispatchCount() != 1 {
		t.Errorf("Queued run must not be dispatched yet, got %d dispatches", executor.DispatchCount())
	}

	// Only one run may wait per configuration.
	if _, err := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, ""); err == nil {
		t.Fatal("Expected conflict for a second queued trigger, got nil")
	}

	// Finishing the active run releases the queued one.
	if _, err := c.HandleStarted(ctx, first.ID.String()); err != nil {
		t.Fatalf("HandleStarted failed: %v", err)
	}
	if _, err := c.HandleCompleted(ctx, first.ID.String(), 10, 0); err != nil {
		t.Fatalf("HandleCompleted failed: %v", err)
	}
	if executor.DispatchCount() != 2 {
		t.Errorf("Expected queued run dispatched after completion, got %d dispatches", executor.DispatchCount())
	}
}

func TestTrigger_DispatchFailureFailsRun(t *testing.T) {
	c, cfgRepo, runRepo, executor := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyReject)
	executor.dispatchErr = errors.New("executor unreachable")

	_, err := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")
	if err == nil {
		t.Fatal("Expected error when dispatch fails, got nil")
	}

	// The run record survives with status failed and a summary.
	runs, _ := runRepo.List(ctx, scanrun.Filter{}, pagination.New(1, 10))
	if len(runs.Data) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs.Data))
	}
	failed := runs.Data[0]
	if failed.Status != scanrun.StatusFailed {
		t.Errorf("Expected status failed, got %s", failed.Status)
	}
	if failed.ErrorSummary == "" {
		t.Error("Expected an error summary")
	}
}

func TestHandleStarted(t *testing.T) {
	c, cfgRepo, _, _ := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyReject)

	run, _ := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")

	started, err := c.HandleStarted(ctx, run.ID.String())
	if err != nil {
		t.Fatalf("HandleStarted failed: %v", err)
	}
	if started.Status != scanrun.StatusRunning {
		t.Errorf("Expected status running, got %s", started.Status)
	}
}

func TestHandleProgress_StartsPendingRun(t *testing.T) {
	c, cfgRepo, _, _ := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyReject)

	run, _ := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")

	updated, err := c.HandleProgress(ctx, run.ID.String(), ProgressInput{Progress: 30, EntitiesScanned: 12})
	if err != nil {
		t.Fatalf("HandleProgress failed: %v", err)
	}
	if updated.Status != scanrun.StatusRunning {
		t.Errorf("Expected a progress report to start the run, got %s", updated.Status)
	}
	if updated.Progress != 30 {
		t.Errorf("Expected progress 30, got %d", updated.Progress)
	}
}

func TestHandleProgress_DroppedAfterCancel(t *testing.T) {
	c, cfgRepo, _, _ := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyReject)

	run, _ := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")
	c.HandleStarted(ctx, run.ID.String())
	c.HandleProgress(ctx, run.ID.String(), ProgressInput{Progress: 50})

	cancelled, err := c.Cancel(ctx, run.ID.String())
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != scanrun.StatusCancelled {
		t.Fatalf("Expected status cancelled, got %s", cancelled.Status)
	}

	// A late report from the executor is acknowledged but changes nothing.
	after, err := c.HandleProgress(ctx, run.ID.String(), ProgressInput{Progress: 90})
	if err != nil {
		t.Fatalf("Late progress report should not error, got %v", err)
	}
	if after.Status != scanrun.StatusCancelled {
		t.Errorf("Expected status to stay cancelled, got %s", after.Status)
	}
	if after.Progress != 50 {
		t.Errorf("Expected progress to stay at 50, got %d", after.Progress)
	}

	// Same for a late completion report.
	late, err := c.HandleCompleted(ctx, run.ID.String(), 999, 9)
	if err != nil {
		t.Fatalf("Late completion report should not error, got %v", err)
	}
	if late.Status != scanrun.StatusCancelled {
		t.Errorf("Cancellation must win over a late completion, got %s", late.Status)
	}
}

func TestCancel_RequestsExecutorCancel(t *testing.T) {
	c, cfgRepo, _, executor := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyReject)

	run, _ := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")
	c.HandleStarted(ctx, run.ID.String())

	if _, err := c.Cancel(ctx, run.ID.String()); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if executor.CancelCount() != 1 {
		t.Errorf("Expected 1 executor cancel request, got %d", executor.CancelCount())
	}
}

func TestCancel_PendingRunSkipsExecutor(t *testing.T) {
	c, cfgRepo, _, executor := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyReject)

	run, _ := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")

	if _, err := c.Cancel(ctx, run.ID.String()); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if executor.CancelCount() != 0 {
		t.Errorf("Pending run was never picked up, expected no executor cancel, got %d", executor.CancelCount())
	}
}

func TestCancel_Idempotent(t *testing.T) {
	c, cfgRepo, _, _ := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyReject)

	run, _ := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")
	c.Cancel(ctx, run.ID.String())

	again, err := c.Cancel(ctx, run.ID.String())
	if err != nil {
		t.Fatalf("Cancelling a cancelled run should be a no-op, got %v", err)
	}
	if again.Status != scanrun.StatusCancelled {
		t.Errorf("Expected status cancelled, got %s", again.Status)
	}
}

func TestCancel_CompletedRunConflicts(t *testing.T) {
	c, cfgRepo, _, _ := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyReject)

	run, _ := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")
	c.HandleStarted(ctx, run.ID.String())
	c.HandleCompleted(ctx, run.ID.String(), 1, 0)

	_, err := c.Cancel(ctx, run.ID.String())
	if err == nil {
		t.Fatal("Expected error cancelling a completed run, got nil")
	}
	if !shared.IsConflict(err) {
		t.Errorf("Expected conflict error, got %v", err)
	}
}

func TestHandleCompleted_RecordsRollup(t *testing.T) {
	c, cfgRepo, _, _ := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyReject)

	run, _ := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")
	c.HandleStarted(ctx, run.ID.String())

	done, err := c.HandleCompleted(ctx, run.ID.String(), 1200, 3)
	if err != nil {
		t.Fatalf("HandleCompleted failed: %v", err)
	}
	if done.EntitiesScanned != 1200 || done.IssuesFound != 3 {
		t.Errorf("Expected final counts 1200/3, got %d/%d", done.EntitiesScanned, done.IssuesFound)
	}

	if cfgRepo.RecordedStatus(run.ID) != "completed" {
		t.Errorf("Expected rollup recorded as completed, got %q", cfgRepo.RecordedStatus(run.ID))
	}
	if cfg.TotalRuns != 1 || cfg.SuccessfulRuns != 1 {
		t.Errorf("Expected configuration stats 1/1, got %d/%d", cfg.TotalRuns, cfg.SuccessfulRuns)
	}
}

func TestHandleFailed_RecordsSummary(t *testing.T) {
	c, cfgRepo, _, _ := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyReject)

	run, _ := c.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")
	c.HandleStarted(ctx, run.ID.String())

	failed, err := c.HandleFailed(ctx, run.ID.String(), "out of memory")
	if err != nil {
		t.Fatalf("HandleFailed failed: %v", err)
	}
	if failed.Status != scanrun.StatusFailed {
		t.Errorf("Expected status failed, got %s", failed.Status)
	}
	if failed.ErrorSummary != "out of memory" {
		t.Errorf("Expected error summary preserved, got %q", failed.ErrorSummary)
	}
	if cfgRepo.RecordedStatus(run.ID) != "failed" {
		t.Errorf("Expected rollup recorded as failed, got %q", cfgRepo.RecordedStatus(run.ID))
	}
}

func TestRecover_RebuildsActiveTable(t *testing.T) {
	c, cfgRepo, runRepo, _ := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyParallel)

	running, _ := scanrun.New(cfg.ID, scanrun.TriggerScheduled, "")
	running.Start()
	runRepo.Create(ctx, running)

	terminal, _ := scanrun.New(cfg.ID, scanrun.TriggerManual, "")
	terminal.Cancel()
	runRepo.Create(ctx, terminal)

	if err := c.Recover(ctx); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	c.mu.RLock()
	_, tracked := c.active[running.ID]
	_, trackedTerminal := c.active[terminal.ID]
	c.mu.RUnlock()

	if !tracked {
		t.Error("Expected the running run to be tracked after recovery")
	}
	if trackedTerminal {
		t.Error("Terminal runs must not be tracked after recovery")
	}
}

func TestStaleRuns(t *testing.T) {
	c, cfgRepo, runRepo, _ := newTestCoordinator()
	ctx := context.Background()
	cfg := createConfig(t, cfgRepo, scanconfig.PolicyParallel)

	fresh, _ := scanrun.New(cfg.ID, scanrun.TriggerManual, "")
	fresh.Start()
	runRepo.Create(ctx, fresh)

	quiet, _ := scanrun.New(cfg.ID, scanrun.TriggerManual, "")
	quiet.Start()
	quiet.LastProgressAt = time.Now().Add(-time.Hour)
	runRepo.Create(ctx, quiet)

	stale, err := c.StaleRuns(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("StaleRuns failed: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("Expected 1 stale run, got %d", len(stale))
	}
	if stale[0].ID != quiet.ID {
		t.Error("Expected the quiet run to be flagged stale")
	}
}
