package scanconfig

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "github.com/seiforesti/data-wave-sub013/pkg/domain/scanconfig"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanrun"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

// MockConfigRepository implements scanconfig.Repository for testing.
type MockConfigRepository struct {
	mu      sync.RWMutex
	configs map[string]*domain.ScanConfiguration
}

func NewMockConfigRepository() *MockConfigRepository {
	return &MockConfigRepository{configs: make(map[string]*domain.ScanConfiguration)}
}

func (m *MockConfigRepository) Create(ctx context.Context, cfg *domain.ScanConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.ID.String()] = cfg
	return nil
}

func (m *MockConfigRepository) GetByID(ctx context.Context, id shared.ID) (*domain.ScanConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if cfg, ok := m.configs[id.String()]; ok {
		return cfg, nil
	}
	return nil, shared.ErrNotFound
}

func (m *MockConfigRepository) GetByName(ctx context.Context, name string) (*domain.ScanConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cfg := range m.configs {
		if cfg.Name == name {
			return cfg, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *MockConfigRepository) List(ctx context.Context, filter domain.Filter, page pagination.Pagination) (pagination.Result[*domain.ScanConfiguration], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []*domain.ScanConfiguration
	for _, cfg := range m.configs {
		if filter.Status != nil && cfg.Status != *filter.Status {
			continue
		}
		items = append(items, cfg)
	}
	return pagination.NewResult(items, int64(len(items)), page), nil
}

func (m *MockConfigRepository) Update(ctx context.Context, cfg *domain.ScanConfiguration, expectedRevision int64) error {
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

func (m *MockConfigRepository) ListDueForExecution(ctx context.Context, now time.Time) ([]*domain.ScanConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []*domain.ScanConfiguration
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
	if cfg, ok := m.configs[id.String()]; ok {
		cfg.RecordRun(runID, status)
	}
	return nil
}

func (m *MockConfigRepository) GetStats(ctx context.Context) (*domain.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &domain.Stats{}
	for _, cfg := range m.configs {
		stats.Total++
		switch cfg.Status {
		case domain.StatusActive:
			stats.Active++
		case domain.StatusPaused:
			stats.Paused++
		case domain.StatusArchived:
			stats.Archived++
		}
	}
	return stats, nil
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

func newTestService() (*Service, *MockConfigRepository, *MockRunRepository) {
	cfgRepo := NewMockConfigRepository()
	runRepo := NewMockRunRepository()
	return NewService(cfgRepo, runRepo, logger.NewNop()), cfgRepo, runRepo
}

func validCreateInput() CreateInput {
	return CreateInput{
		Name:         "Nightly PII Scan",
		DataSourceID: 42,
		ScanType:     "full",
		Settings: domain.Settings{
			EnablePIIDetection: true,
			Parallelism:        4,
		},
		CreatedBy: "tester",
	}
}

func TestCreate_Success(t *testing.T) {
	service, cfgRepo, _ := newTestService()
	ctx := context.Background()

	cfg, err := service.Create(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if cfg.Name != "Nightly PII Scan" {
		t.Errorf("Expected name 'Nightly PII Scan', got %q", cfg.Name)
	}
	if cfg.Status != domain.StatusActive {
		t.Errorf("Expected status active, got %s", cfg.Status)
	}
	if cfg.Revision != 1 {
		t.Errorf("Expected revision 1, got %d", cfg.Revision)
	}
	if len(cfgRepo.configs) != 1 {
		t.Errorf("Expected 1 configuration in repo, got %d", len(cfgRepo.configs))
	}
}

func TestCreate_WithSchedule(t *testing.T) {
	service, _, _ := newTestService()

	input := validCreateInput()
	input.ScheduleCron = "0 2 * * *"
	input.ScheduleEnabled = true

	cfg, err := service.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if cfg.Schedule == nil || !cfg.Schedule.Enabled {
		t.Fatal("Expected an enabled schedule")
	}
	if cfg.Schedule.NextRunAt == nil {
		t.Error("Expected the next fire time to be computed")
	}
}

func TestCreate_DuplicateName(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	if _, err := service.Create(ctx, validCreateInput()); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	_, err := service.Create(ctx, validCreateInput())
	if err == nil {
		t.Fatal("Expected error for duplicate name, got nil")
	}
}

func TestCreate_InvalidPolicy(t *testing.T) {
	service, _, _ := newTestService()

	input := validCreateInput()
	input.ConcurrencyPolicy = "serialize"

	if _, err := service.Create(context.Background(), input); err == nil {
		t.Fatal("Expected error for unknown concurrency policy, got nil")
	}
}

func TestUpdate_BumpsRevision(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	cfg, _ := service.Create(ctx, validCreateInput())

	newDesc := "scans customer tables"
	updated, err := service.Update(ctx, cfg.ID.String(), UpdateInput{
		Description: &newDesc,
		Revision:    1,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Revision != 2 {
		t.Errorf("Expected revision 2, got %d", updated.Revision)
	}
	if updated.Description != newDesc {
		t.Errorf("Expected description updated, got %q", updated.Description)
	}
}

func TestUpdate_RevisionMismatch(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	cfg, _ := service.Create(ctx, validCreateInput())

	name := "renamed"
	_, err := service.Update(ctx, cfg.ID.String(), UpdateInput{
		Name:     &name,
		Revision: 99,
	})
	if err == nil {
		t.Fatal("Expected error for stale revision, got nil")
	}
	if !shared.IsConflict(err) {
		t.Errorf("Expected conflict error, got %v", err)
	}
}

func TestUpdate_ScanTypeBlockedByActiveRun(t *testing.T) {
	service, _, runRepo := newTestService()
	ctx := context.Background()

	cfg, _ := service.Create(ctx, validCreateInput())

	run, _ := scanrun.New(cfg.ID, scanrun.TriggerManual, "")
	runRepo.Create(ctx, run)

	newType := "incremental"
	_, err := service.Update(ctx, cfg.ID.String(), UpdateInput{
		ScanType: &newType,
		Revision: 1,
	})
	if err == nil {
		t.Fatal("Expected error changing scan type with an active run, got nil")
	}
	if !shared.IsConflict(err) {
		t.Errorf("Expected conflict error, got %v", err)
	}

	// Once the run is terminal the change goes through.
	run.Cancel()
	updated, err := service.Update(ctx, cfg.ID.String(), UpdateInput{
		ScanType: &newType,
		Revision: 1,
	})
	if err != nil {
		t.Fatalf("Update after run finished failed: %v", err)
	}
	if updated.ScanType != domain.ScanTypeIncremental {
		t.Errorf("Expected scan type incremental, got %s", updated.ScanType)
	}
}

func TestUpdate_ArchivedConfigurationRejected(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	cfg, _ := service.Create(ctx, validCreateInput())
	if err := service.Delete(ctx, cfg.ID.String()); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	name := "renamed"
	_, err := service.Update(ctx, cfg.ID.String(), UpdateInput{Name: &name, Revision: 2})
	if err == nil {
		t.Fatal("Expected error updating an archived configuration, got nil")
	}
}

func TestDelete_Archives(t *testing.T) {
	service, cfgRepo, _ := newTestService()
	ctx := context.Background()

	cfg, _ := service.Create(ctx, validCreateInput())

	if err := service.Delete(ctx, cfg.ID.String()); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	stored, _ := cfgRepo.GetByID(ctx, cfg.ID)
	if stored.Status != domain.StatusArchived {
		t.Errorf("Expected status archived, got %s", stored.Status)
	}
	if len(cfgRepo.configs) != 1 {
		t.Error("Archiving must not hard-delete the configuration")
	}
}

func TestDelete_BlockedByActiveRun(t *testing.T) {
	service, _, runRepo := newTestService()
	ctx := context.Background()

	cfg, _ := service.Create(ctx, validCreateInput())

	run, _ := scanrun.New(cfg.ID, scanrun.TriggerManual, "")
	run.Start()
	runRepo.Create(ctx, run)

	err := service.Delete(ctx, cfg.ID.String())
	if err == nil {
		t.Fatal("Expected error archiving with an active run, got nil")
	}
	if !shared.IsConflict(err) {
		t.Errorf("Expected conflict error, got %v", err)
	}
}

func TestClone_FreshIdentityAndStats(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	cfg, _ := service.Create(ctx, validCreateInput())
	cfg.RecordRun(shared.NewID(), "completed")

	clone, err := service.Clone(ctx, cfg.ID.String(), "Nightly PII Scan v2")
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if clone.ID == cfg.ID {
		t.Error("Clone must get a new ID")
	}
	if clone.TotalRuns != 0 {
		t.Errorf("Clone should have no run history, got %d runs", clone.TotalRuns)
	}
	if clone.Revision != 1 {
		t.Errorf("Clone should start at revision 1, got %d", clone.Revision)
	}
}

func TestClone_DuplicateName(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	cfg, _ := service.Create(ctx, validCreateInput())

	_, err := service.Clone(ctx, cfg.ID.String(), cfg.Name)
	if err == nil {
		t.Fatal("Expected error cloning under an existing name, got nil")
	}
}

func TestPauseAndActivate_Service(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	cfg, _ := service.Create(ctx, validCreateInput())

	paused, err := service.Pause(ctx, cfg.ID.String())
	if err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if paused.Status != domain.StatusPaused {
		t.Errorf("Expected status paused, got %s", paused.Status)
	}

	activated, err := service.Activate(ctx, cfg.ID.String())
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if activated.Status != domain.StatusActive {
		t.Errorf("Expected status active, got %s", activated.Status)
	}
}

func TestSetScheduleEnabled(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	input := validCreateInput()
	input.ScheduleCron = "0 2 * * *"
	cfg, _ := service.Create(ctx, input)

	enabled, err := service.SetScheduleEnabled(ctx, cfg.ID.String(), true)
	if err != nil {
		t.Fatalf("SetScheduleEnabled failed: %v", err)
	}
	if !enabled.Schedule.Enabled {
		t.Error("Expected schedule enabled")
	}

	disabled, err := service.SetScheduleEnabled(ctx, cfg.ID.String(), false)
	if err != nil {
		t.Fatalf("SetScheduleEnabled failed: %v", err)
	}
	if disabled.Schedule.Enabled {
		t.Error("Expected schedule disabled")
	}
}
