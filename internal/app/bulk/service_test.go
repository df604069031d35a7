package bulk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/seiforesti/data-wave-sub013/internal/app/run"
	appscanconfig "github.com/seiforesti/data-wave-sub013/internal/app/scanconfig"
	"github.com/seiforesti/data-wave-sub013/internal/app/stream"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanconfig"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanrun"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

// memConfigRepo implements scanconfig.Repository over a map.
type memConfigRepo struct {
	mu      sync.RWMutex
	configs map[string]*scanconfig.ScanConfiguration
}

func newMemConfigRepo() *memConfigRepo {
	return &memConfigRepo{configs: make(map[string]*scanconfig.ScanConfiguration)}
}

func (m *memConfigRepo) Create(ctx context.Context, cfg *scanconfig.ScanConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.ID.String()] = cfg
	return nil
}

func (m *memConfigRepo) GetByID(ctx context.Context, id shared.ID) (*scanconfig.ScanConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if cfg, ok := m.configs[id.String()]; ok {
		return cfg, nil
	}
	return nil, shared.ErrNotFound
}

func (m *memConfigRepo) GetByName(ctx context.Context, name string) (*scanconfig.ScanConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cfg := range m.configs {
		if cfg.Name == name {
			return cfg, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memConfigRepo) List(ctx context.Context, filter scanconfig.Filter, page pagination.Pagination) (pagination.Result[*scanconfig.ScanConfiguration], error) {
	return pagination.Result[*scanconfig.ScanConfiguration]{}, nil
}

func (m *memConfigRepo) Update(ctx context.Context, cfg *scanconfig.ScanConfiguration, expectedRevision int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.configs[cfg.ID.String()]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Revision != expectedRevision {
		return shared.NewDomainError("REVISION_MISMATCH", "revision mismatch", shared.ErrConflict)
	}
	cfg.Revision = expectedRevision + 1
	m.configs[cfg.ID.String()] = cfg
	return nil
}

func (m *memConfigRepo) ListDueForExecution(ctx context.Context, now time.Time) ([]*scanconfig.ScanConfiguration, error) {
	return nil, nil
}

func (m *memConfigRepo) UpdateNextRunAt(ctx context.Context, id shared.ID, nextRunAt *time.Time) error {
	return nil
}

func (m *memConfigRepo) RecordRun(ctx context.Context, id shared.ID, runID shared.ID, status string) error {
	return nil
}

func (m *memConfigRepo) GetStats(ctx context.Context) (*scanconfig.Stats, error) {
	return &scanconfig.Stats{}, nil
}

// memRunRepo implements scanrun.Repository over a map.
type memRunRepo struct {
	mu   sync.RWMutex
	runs map[string]*scanrun.ScanRun
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: make(map[string]*scanrun.ScanRun)}
}

func (m *memRunRepo) Create(ctx context.Context, r *scanrun.ScanRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID.String()] = r
	return nil
}

func (m *memRunRepo) GetByID(ctx context.Context, id shared.ID) (*scanrun.ScanRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.runs[id.String()]; ok {
		return r, nil
	}
	return nil, shared.ErrNotFound
}

func (m *memRunRepo) List(ctx context.Context, filter scanrun.Filter, page pagination.Pagination) (pagination.Result[*scanrun.ScanRun], error) {
	return pagination.Result[*scanrun.ScanRun]{}, nil
}

func (m *memRunRepo) Update(ctx context.Context, r *scanrun.ScanRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID.String()] = r
	return nil
}

func (m *memRunRepo) CountActiveByConfiguration(ctx context.Context, configurationID shared.ID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, r := range m.runs {
		if r.ConfigurationID == configurationID && !r.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (m *memRunRepo) ListActive(ctx context.Context) ([]*scanrun.ScanRun, error) {
	return nil, nil
}

// nopExecutor accepts every dispatch and cancel.
type nopExecutor struct{}

func (nopExecutor) Dispatch(ctx context.Context, r *scanrun.ScanRun, cfg *scanconfig.ScanConfiguration) error {
	return nil
}

func (nopExecutor) Cancel(ctx context.Context, runID shared.ID) error {
	return nil
}

type testEnv struct {
	bulk        *Service
	configSvc   *appscanconfig.Service
	coordinator *run.Coordinator
	cfgRepo     *memConfigRepo
	runRepo     *memRunRepo
}

func newTestEnv(maxParallel, maxItems int) *testEnv {
	cfgRepo := newMemConfigRepo()
	runRepo := newMemRunRepo()
	log := logger.NewNop()
	st := stream.New(16, log)

	configSvc := appscanconfig.NewService(cfgRepo, runRepo, log)
	coordinator := run.NewCoordinator(runRepo, cfgRepo, nopExecutor{}, st, log)

	return &testEnv{
		bulk:        NewService(configSvc, coordinator, maxParallel, maxItems, log),
		configSvc:   configSvc,
		coordinator: coordinator,
		cfgRepo:     cfgRepo,
		runRepo:     runRepo,
	}
}

func (e *testEnv) createConfig(t *testing.T, name string) *scanconfig.ScanConfiguration {
	t.Helper()
	cfg, err := e.configSvc.Create(context.Background(), appscanconfig.CreateInput{
		Name:         name,
		DataSourceID: 1,
		ScanType:     "full",
		Settings:     scanconfig.Settings{Parallelism: 1},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return cfg
}

func strPtr(s string) *string { return &s }

func TestBulkUpdate_PartialFailure(t *testing.T) {
	env := newTestEnv(2, 100)
	ctx := context.Background()

	cfg := env.createConfig(t, "config a")
	missing := shared.NewID().String()

	result, err := env.bulk.UpdateConfigurations(ctx, []ConfigPatch{
		{ID: cfg.ID.String(), Patch: appscanconfig.UpdateInput{Description: strPtr("updated"), Revision: 1}},
		{ID: missing, Patch: appscanconfig.UpdateInput{Description: strPtr("updated"), Revision: 1}},
	})
	if err != nil {
		t.Fatalf("UpdateConfigurations failed: %v", err)
	}

	if result.Succeeded != 1 || result.Failed != 1 {
		t.Errorf("Expected 1 success / 1 failure, got %d/%d", result.Succeeded, result.Failed)
	}
	if len(result.Items) != 2 {
		t.Fatalf("Expected 2 item outcomes, got %d", len(result.Items))
	}

	// Outcomes keep input order.
	if !result.Items[0].Success || result.Items[0].ID != cfg.ID.String() {
		t.Errorf("Expected first item to succeed, got %+v", result.Items[0])
	}
	if result.Items[1].Success {
		t.Errorf("Expected second item to fail, got %+v", result.Items[1])
	}
	if result.Items[1].Code != "NOT_FOUND" {
		t.Errorf("Expected NOT_FOUND code, got %q", result.Items[1].Code)
	}

	// The successful patch actually landed.
	stored, _ := env.cfgRepo.GetByID(ctx, cfg.ID)
	if stored.Description != "updated" {
		t.Errorf("Expected description updated, got %q", stored.Description)
	}
}

func TestBulkUpdate_IndependentItems(t *testing.T) {
	env := newTestEnv(4, 100)
	ctx := context.Background()

	a := env.createConfig(t, "config a")
	b := env.createConfig(t, "config b")

	// b carries a stale revision; a must still go through.
	result, err := env.bulk.UpdateConfigurations(ctx, []ConfigPatch{
		{ID: a.ID.String(), Patch: appscanconfig.UpdateInput{Description: strPtr("x"), Revision: 1}},
		{ID: b.ID.String(), Patch: appscanconfig.UpdateInput{Description: strPtr("x"), Revision: 42}},
	})
	if err != nil {
		t.Fatalf("UpdateConfigurations failed: %v", err)
	}
	if result.Succeeded != 1 || result.Failed != 1 {
		t.Errorf("Expected 1/1, got %d/%d", result.Succeeded, result.Failed)
	}
	if result.Items[1].Code != "REVISION_MISMATCH" {
		t.Errorf("Expected REVISION_MISMATCH code, got %q", result.Items[1].Code)
	}
}

func TestBulkUpdate_SizeLimits(t *testing.T) {
	env := newTestEnv(2, 2)
	ctx := context.Background()

	if _, err := env.bulk.UpdateConfigurations(ctx, nil); err == nil {
		t.Error("Expected error for empty batch")
	}

	patches := make([]ConfigPatch, 3)
	for i := range patches {
		patches[i] = ConfigPatch{ID: shared.NewID().String()}
	}
	if _, err := env.bulk.UpdateConfigurations(ctx, patches); err == nil {
		t.Error("Expected error for oversized batch")
	}
}

func TestBulkCancel_MixedStates(t *testing.T) {
	env := newTestEnv(2, 100)
	ctx := context.Background()

	cfg := env.createConfig(t, "config a")
	cfg.ConcurrencyPolicy = scanconfig.PolicyParallel

	active, err := env.coordinator.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	missing := shared.NewID().String()

	result, err := env.bulk.CancelRuns(ctx, []string{active.ID.String(), missing})
	if err != nil {
		t.Fatalf("CancelRuns failed: %v", err)
	}

	if result.Succeeded != 1 || result.Failed != 1 {
		t.Errorf("Expected 1 success / 1 failure, got %d/%d", result.Succeeded, result.Failed)
	}

	cancelled, _ := env.runRepo.GetByID(ctx, active.ID)
	if cancelled.Status != scanrun.StatusCancelled {
		t.Errorf("Expected run cancelled, got %s", cancelled.Status)
	}
}

func TestBulkCancel_Idempotent(t *testing.T) {
	env := newTestEnv(2, 100)
	ctx := context.Background()

	cfg := env.createConfig(t, "config a")
	cfg.ConcurrencyPolicy = scanconfig.PolicyParallel

	var ids []string
	for i := 0; i < 3; i++ {
		r, err := env.coordinator.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")
		if err != nil {
			t.Fatalf("Trigger %d failed: %v", i, err)
		}
		ids = append(ids, r.ID.String())
	}

	first, err := env.bulk.CancelRuns(ctx, ids)
	if err != nil {
		t.Fatalf("CancelRuns failed: %v", err)
	}
	if first.Succeeded != len(ids) {
		t.Fatalf("Expected all %d cancels to succeed, got %d", len(ids), first.Succeeded)
	}

	// Retrying the same batch succeeds again: already-cancelled runs
	// count as success.
	second, err := env.bulk.CancelRuns(ctx, ids)
	if err != nil {
		t.Fatalf("retry CancelRuns failed: %v", err)
	}
	if second.Succeeded != len(ids) || second.Failed != 0 {
		t.Errorf("Expected idempotent retry %d/0, got %d/%d", len(ids), second.Succeeded, second.Failed)
	}
}

func TestBulkCancel_CompletedRunCountsAsSuccess(t *testing.T) {
	env := newTestEnv(2, 100)
	ctx := context.Background()

	cfg := env.createConfig(t, "config a")

	r, _ := env.coordinator.Trigger(ctx, cfg.ID.String(), scanrun.TriggerManual, "")
	env.coordinator.HandleStarted(ctx, r.ID.String())
	env.coordinator.HandleCompleted(ctx, r.ID.String(), 1, 0)

	result, err := env.bulk.CancelRuns(ctx, []string{r.ID.String()})
	if err != nil {
		t.Fatalf("CancelRuns failed: %v", err)
	}
	if result.Succeeded != 1 {
		t.Errorf("Cancelling a terminal run in a batch should count as success, got %+v", result.Items[0])
	}
}
