package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

// ExecutorGateway delivers dispatched work to the external executor.
type ExecutorGateway interface {
	StartScan(ctx context.Context, payload ScanExecutePayload) error
	CancelScan(ctx context.Context, runID string) error
}

// WorkerConfig holds the configuration for the job worker.
type WorkerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// Worker processes queued scan dispatch jobs.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *logger.Logger
}

// NewWorker creates a new background job worker.
func NewWorker(cfg WorkerConfig, gateway ExecutorGateway, log *logger.Logger) *Worker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				"default": 2,
				QueueScans: 8,
			},
		},
	)

	handler := &scanTaskHandler{gateway: gateway, logger: log.With("component", "job_worker")}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeScanExecute, handler.HandleExecute)
	mux.HandleFunc(TypeScanCancel, handler.HandleCancel)

	return &Worker{
		server: server,
		mux:    mux,
		logger: log.With("component", "job_worker"),
	}
}

// Start starts processing jobs. Blocks until Shutdown is called.
func (w *Worker) Start() error {
	w.logger.Info("job worker starting")
	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("job worker: %w", err)
	}
	return nil
}

// Shutdown stops the worker gracefully.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
	w.logger.Info("job worker stopped")
}

type scanTaskHandler struct {
	gateway ExecutorGateway
	logger  *logger.Logger
}

// HandleExecute forwards a scan dispatch to the executor. Errors are
// returned so asynq retries the delivery.
func (h *scanTaskHandler) HandleExecute(ctx context.Context, task *asynq.Task) error {
	var payload ScanExecutePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal scan payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.gateway.StartScan(ctx, payload); err != nil {
		h.logger.Error("executor start failed", "run_id", payload.RunID, "error", err)
		return fmt.Errorf("start scan: %w", err)
	}

	h.logger.Info("scan delivered to executor", "run_id", payload.RunID)
	return nil
}

// HandleCancel forwards a cancellation request to the executor.
func (h *scanTaskHandler) HandleCancel(ctx context.Context, task *asynq.Task) error {
	var payload ScanCancelPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal cancel payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.gateway.CancelScan(ctx, payload.RunID); err != nil {
		h.logger.Error("executor cancel failed", "run_id", payload.RunID, "error", err)
		return fmt.Errorf("cancel scan: %w", err)
	}
	return nil
}
