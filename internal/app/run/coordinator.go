// Package run implements run orchestration: triggering under the
// configuration's concurrency policy, the execution lifecycle driven by
// executor callbacks, cooperative cancellation, scheduled triggering and
// stale-run detection.
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
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

// Executor dispatches scan work to the external executor and requests
// cancellation of in-flight work. Cancellation is cooperative: the
// executor acknowledges the request and reports the final state through
// its callbacks, which the coordinator ignores once the run is terminal.
type Executor interface {
	Dispatch(ctx context.Context, run *scanrun.ScanRun, cfg *scanconfig.ScanConfiguration) error
	Cancel(ctx context.Context, runID shared.ID) error
}

// runState is the in-memory entry for a non-terminal run. Its mutex
// serializes all writers for that run; the coordinator-level lock only
// guards the table itself.
type runState struct {
	mu       sync.Mutex
	scanType scanconfig.ScanType
}

// Coordinator owns the run lifecycle.
type Coordinator struct {
	runRepo  scanrun.Repository
	cfgRepo  scanconfig.Repository
	executor Executor
	stream   *stream.Stream
	logger   *logger.Logger

	mu     sync.RWMutex
	active map[shared.ID]*runState
	// queued holds at most one pending run per configuration, created
	// under the queue concurrency policy and dispatched when the active
	// run for that configuration reaches a terminal state.
	queued map[shared.ID]shared.ID
}

// NewCoordinator creates a new Coordinator.
func NewCoordinator(runRepo scanrun.Repository, cfgRepo scanconfig.Repository, executor Executor, st *stream.Stream, log *logger.Logger) *Coordinator {
	return &Coordinator{
		runRepo:  runRepo,
		cfgRepo:  cfgRepo,
		executor: executor,
		stream:   st,
		logger:   log.With("service", "run"),
		active:   make(map[shared.ID]*runState),
		queued:   make(map[shared.ID]shared.ID),
	}
}

// Trigger creates a run for the configuration and dispatches it to the
// executor, applying the configuration's concurrency policy when another
// run for the same configuration is already in flight.
func (c *Coordinator) Trigger(ctx context.Context, configurationID string, trigger scanrun.TriggerType, triggeredBy string) (*scanrun.ScanRun, error) {
	cfgID, err := shared.IDFromString(configurationID)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION", "invalid configuration id", shared.ErrValidation)
	}

	cfg, err := c.cfgRepo.GetByID(ctx, cfgID)
	if err != nil {
		return nil, err
	}
	if !cfg.CanTrigger() {
		return nil, shared.NewDomainError("CONFLICT", "configuration is not active", shared.ErrConflict)
	}

	activeCount, err := c.runRepo.CountActiveByConfiguration(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}

	if activeCount > 0 {
		switch cfg.ConcurrencyPolicy {
		case scanconfig.PolicyParallel:
			// fall through to dispatch
		case scanconfig.PolicyReject:
			metrics.TriggerRejectionsTotal.WithLabelValues(string(scanconfig.PolicyReject)).Inc()
			return nil, shared.NewDomainError("CONFLICT", "a run is already active for this configuration", shared.ErrConflict)
		case scanconfig.PolicyQueue:
			return c.enqueue(ctx, cfg, trigger, triggeredBy)
		}
	}

	run, err := c.createRun(ctx, cfg, trigger, triggeredBy)
	if err != nil {
		return nil, err
	}
	if err := c.dispatch(ctx, run, cfg); err != nil {
		return nil, err
	}
	return run, nil
}

func (c *Coordinator) createRun(ctx context.Context, cfg *scanconfig.ScanConfiguration, trigger scanrun.TriggerType, triggeredBy string) (*scanrun.ScanRun, error) {
	run, err := scanrun.New(cfg.ID, trigger, triggeredBy)
	if err != nil {
		return nil, err
	}
	run.Name = cfg.Name

	if err := c.runRepo.Create(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// enqueue parks a pending run behind the active one. At most one run may
// wait per configuration; a second queued trigger is rejected.
func (c *Coordinator) enqueue(ctx context.Context, cfg *scanconfig.ScanConfiguration, trigger scanrun.TriggerType, triggeredBy string) (*scanrun.ScanRun, error) {
	c.mu.Lock()
	if _, ok := c.queued[cfg.ID]; ok {
		c.mu.Unlock()
		metrics.TriggerRejectionsTotal.WithLabelValues(string(scanconfig.PolicyQueue)).Inc()
		return nil, shared.NewDomainError("CONFLICT", "a run is already queued for this configuration", shared.ErrConflict)
	}
	// reserve the slot before the repo round trip
	c.queued[cfg.ID] = shared.ID{}
	c.mu.Unlock()

	run, err := c.createRun(ctx, cfg, trigger, triggeredBy)
	if err != nil {
		c.mu.Lock()
		delete(c.queued, cfg.ID)
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	c.queued[cfg.ID] = run.ID
	c.mu.Unlock()

	c.logger.Info("run queued", "run_id", run.ID.String(), "config_id", cfg.ID.String())
	return run, nil
}

func (c *Coordinator) dispatch(ctx context.Context, run *scanrun.ScanRun, cfg *scanconfig.ScanConfiguration) error {
	c.mu.Lock()
	c.active[run.ID] = &runState{scanType: cfg.ScanType}
	c.mu.Unlock()

	if err := c.executor.Dispatch(ctx, run, cfg); err != nil {
		c.mu.Lock()
		delete(c.active, run.ID)
		c.mu.Unlock()

		run.ErrorSummary = "executor dispatch failed: " + err.Error()
		if ferr := run.Fail(run.ErrorSummary); ferr == nil {
			if uerr := c.runRepo.Update(ctx, run); uerr != nil {
				c.logger.Error("failed to persist dispatch failure", "run_id", run.ID.String(), "error", uerr)
			}
		}
		metrics.RunsTotal.WithLabelValues(string(run.TriggerType), string(scanrun.StatusFailed)).Inc()
		return shared.NewDomainError("EXECUTOR", "failed to dispatch run to executor", shared.ErrExecutor)
	}

	metrics.RunsInProgress.Inc()
	c.logger.Info("run dispatched",
		"run_id", run.ID.String(),
		"config_id", cfg.ID.String(),
		"trigger", string(run.TriggerType),
	)
	return nil
}

// lockRun returns the per-run state with its mutex held, or nil when the
// run is not tracked (already terminal or never dispatched).
func (c *Coordinator) lockRun(id shared.ID) *runState {
	c.mu.RLock()
	st := c.active[id]
	c.mu.RUnlock()
	if st == nil {
		return nil
	}
	st.mu.Lock()
	return st
}

// HandleStarted records the executor picking up a run.
func (c *Coordinator) HandleStarted(ctx context.Context, runID string) (*scanrun.ScanRun, error) {
	id, err := shared.IDFromString(runID)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION", "invalid run id", shared.ErrValidation)
	}

	st := c.lockRun(id)
	if st != nil {
		defer st.mu.Unlock()
	}

	run, err := c.runRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status.IsTerminal() {
		// late callback after cancellation, drop it
		return run, nil
	}
	if err := run.Start(); err != nil {
		return nil, err
	}
	if err := c.runRepo.Update(ctx, run); err != nil {
		return nil, err
	}

	c.stream.Publish(stream.EventScanProgress, run.ID.String(), map[string]any{
		"status":   string(run.Status),
		"progress": run.Progress,
	})
	return run, nil
}

// ProgressInput carries one progress report from the executor.
type ProgressInput struct {
	Progress        int
	EntitiesScanned int
	IssuesFound     int
}

// HandleProgress applies a progress report. Reports for terminal runs
// are dropped without error; cancellation already won.
func (c *Coordinator) HandleProgress(ctx context.Context, runID string, input ProgressInput) (*scanrun.ScanRun, error) {
	id, err := shared.IDFromString(runID)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION", "invalid run id", shared.ErrValidation)
	}

	st := c.lockRun(id)
	if st != nil {
		defer st.mu.Unlock()
	}

	run, err := c.runRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status.IsTerminal() {
		return run, nil
	}
	// first report from the executor doubles as the start signal
	if run.Status == scanrun.StatusPending {
		if err := run.Start(); err != nil {
			return nil, err
		}
	}
	if err := run.RecordProgress(input.Progress, input.EntitiesScanned, input.IssuesFound); err != nil {
		return nil, err
	}
	if err := c.runRepo.Update(ctx, run); err != nil {
		return nil, err
	}

	c.stream.Publish(stream.EventScanProgress, run.ID.String(), map[string]any{
		"progress":         run.Progress,
		"entities_scanned": run.EntitiesScanned,
		"issues_found":     run.IssuesFound,
	})
	return run, nil
}

// HandleCompleted finalizes a successful run.
func (c *Coordinator) HandleCompleted(ctx context.Context, runID string, entitiesScanned, issuesFound int) (*scanrun.ScanRun, error) {
	return c.finalize(ctx, runID, func(run *scanrun.ScanRun) error {
		return run.Complete(entitiesScanned, issuesFound)
	}, stream.EventScanCompleted)
}

// HandleFailed finalizes a failed run with the executor's error summary.
func (c *Coordinator) HandleFailed(ctx context.Context, runID, summary string) (*scanrun.ScanRun, error) {
	return c.finalize(ctx, runID, func(run *scanrun.ScanRun) error {
		return run.Fail(summary)
	}, stream.EventScanFailed)
}

func (c *Coordinator) finalize(ctx context.Context, runID string, transition func(*scanrun.ScanRun) error, evt stream.EventType) (*scanrun.ScanRun, error) {
	id, err := shared.IDFromString(runID)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION", "invalid run id", shared.ErrValidation)
	}

	st := c.lockRun(id)
	if st != nil {
		defer st.mu.Unlock()
	}

	run, err := c.runRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status.IsTerminal() {
		return run, nil
	}
	if err := transition(run); err != nil {
		return nil, err
	}
	if err := c.runRepo.Update(ctx, run); err != nil {
		return nil, err
	}

	c.afterTerminal(ctx, run, st)

	c.stream.Publish(evt, run.ID.String(), map[string]any{
		"status":           string(run.Status),
		"entities_scanned": run.EntitiesScanned,
		"issues_found":     run.IssuesFound,
		"duration_ms":      run.Duration.Milliseconds(),
		"error_summary":    run.ErrorSummary,
	})
	return run, nil
}

// Cancel cancels a pending, queued or running run. Cancelling a run that
// is already cancelled is a no-op; completed and failed runs conflict.
func (c *Coordinator) Cancel(ctx context.Context, runID string) (*scanrun.ScanRun, error) {
	id, err := shared.IDFromString(runID)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION", "invalid run id", shared.ErrValidation)
	}

	st := c.lockRun(id)
	if st != nil {
		defer st.mu.Unlock()
	}

	run, err := c.runRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status == scanrun.StatusCancelled {
		return run, nil
	}

	wasRunning := run.Status == scanrun.StatusRunning
	if err := run.Cancel(); err != nil {
		return nil, err
	}
	if err := c.runRepo.Update(ctx, run); err != nil {
		return nil, err
	}

	if wasRunning {
		// best effort, the executor may already be winding down
		if err := c.executor.Cancel(ctx, run.ID); err != nil {
			c.logger.Warn("executor cancel request failed", "run_id", run.ID.String(), "error", err)
		}
	}

	c.afterTerminal(ctx, run, st)

	c.stream.Publish(stream.EventScanCancelled, run.ID.String(), map[string]any{
		"status": string(run.Status),
	})
	c.logger.Info("run cancelled", "run_id", run.ID.String())
	return run, nil
}

// afterTerminal untracks the run, records metrics and the configuration
// rollup, and releases a queued run for the same configuration. Called
// with the per-run lock still held.
func (c *Coordinator) afterTerminal(ctx context.Context, run *scanrun.ScanRun, st *runState) {
	var scanType scanconfig.ScanType
	if st != nil {
		scanType = st.scanType
	}

	c.mu.Lock()
	if _, tracked := c.active[run.ID]; tracked {
		delete(c.active, run.ID)
		metrics.RunsInProgress.Dec()
	}
	if c.queued[run.ConfigurationID] == run.ID {
		delete(c.queued, run.ConfigurationID)
	}
	nextID, hasNext := c.queued[run.ConfigurationID]
	if hasNext {
		delete(c.queued, run.ConfigurationID)
	}
	c.mu.Unlock()

	metrics.RunsTotal.WithLabelValues(string(run.TriggerType), string(run.Status)).Inc()
	if run.Status == scanrun.StatusCompleted && scanType != "" {
		metrics.RunDuration.WithLabelValues(string(scanType)).Observe(run.Duration.Seconds())
	}

	if err := c.cfgRepo.RecordRun(ctx, run.ConfigurationID, run.ID, string(run.Status)); err != nil {
		c.logger.Error("failed to record run on configuration",
			"config_id", run.ConfigurationID.String(),
			"run_id", run.ID.String(),
			"error", err,
		)
	}

	if hasNext && !nextID.IsZero() {
		c.releaseQueued(ctx, run.ConfigurationID, nextID)
	}
}

// releaseQueued dispatches the run that was waiting behind the one that
// just finished.
func (c *Coordinator) releaseQueued(ctx context.Context, cfgID, runID shared.ID) {
	cfg, err := c.cfgRepo.GetByID(ctx, cfgID)
	if err != nil {
		c.logger.Error("failed to load configuration for queued run", "config_id", cfgID.String(), "error", err)
		return
	}
	next, err := c.runRepo.GetByID(ctx, runID)
	if err != nil {
		c.logger.Error("failed to load queued run", "run_id", runID.String(), "error", err)
		return
	}
	if next.Status != scanrun.StatusPending {
		return
	}
	if err := c.dispatch(ctx, next, cfg); err != nil {
		c.logger.Error("failed to dispatch queued run", "run_id", runID.String(), "error", err)
	}
}

// Get retrieves a run by ID.
func (c *Coordinator) Get(ctx context.Context, runID string) (*scanrun.ScanRun, error) {
	id, err := shared.IDFromString(runID)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION", "invalid run id", shared.ErrValidation)
	}
	return c.runRepo.GetByID(ctx, id)
}

// List lists runs with filters and pagination.
func (c *Coordinator) List(ctx context.Context, filter scanrun.Filter, page pagination.Pagination) (pagination.Result[*scanrun.ScanRun], error) {
	return c.runRepo.List(ctx, filter, page)
}

// Recover reloads non-terminal runs after a restart so the in-memory
// table matches the store. Runs left running keep receiving callbacks;
// the stale monitor flags the ones whose executor is gone.
func (c *Coordinator) Recover(ctx context.Context) error {
	runs, err := c.runRepo.ListActive(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, run := range runs {
		if _, ok := c.active[run.ID]; ok {
			continue
		}
		c.active[run.ID] = &runState{}
		metrics.RunsInProgress.Inc()
	}
	c.logger.Info("recovered active runs", "count", len(runs))
	return nil
}

// StaleRuns returns running runs with no progress report inside grace.
func (c *Coordinator) StaleRuns(ctx context.Context, grace time.Duration) ([]*scanrun.ScanRun, error) {
	runs, err := c.runRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var stale []*scanrun.ScanRun
	for _, run := range runs {
		if run.IsStale(now, grace) {
			stale = append(stale, run)
		}
	}
	return stale, nil
}
