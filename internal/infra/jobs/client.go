package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanconfig"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanrun"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

// Client enqueues scan dispatch jobs using Asynq. It is the executor
// port the run coordinator talks to; the worker on the other side of
// the queue delivers the work to the executor itself.
type Client struct {
	client *asynq.Client
	logger *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewClient creates a new job client for enqueueing tasks.
func NewClient(cfg ClientConfig, log *logger.Logger) (*Client, error) {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &Client{
		client: client,
		logger: log.With("component", "job_client"),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Dispatch enqueues a scan execution job for a run.
func (c *Client) Dispatch(ctx context.Context, run *scanrun.ScanRun, cfg *scanconfig.ScanConfiguration) error {
	task, err := NewScanExecuteTask(ScanExecutePayload{
		RunID:                run.ID.String(),
		ConfigurationID:      cfg.ID.String(),
		ScanType:             string(cfg.ScanType),
		Databases:            cfg.Scope.Databases,
		Schemas:              cfg.Scope.Schemas,
		Tables:               cfg.Scope.Tables,
		EnablePIIDetection:   cfg.Settings.EnablePIIDetection,
		EnableClassification: cfg.Settings.EnableClassification,
		EnableLineage:        cfg.Settings.EnableLineage,
		EnableQuality:        cfg.Settings.EnableQuality,
		SampleSize:           cfg.Settings.SampleSize,
		Parallelism:          cfg.Settings.Parallelism,
		DataSourceID:         cfg.DataSourceID,
	})
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue scan dispatch",
			"run_id", run.ID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("scan dispatch queued",
		"task_id", info.ID,
		"run_id", run.ID.String(),
		"queue", info.Queue,
	)
	return nil
}

// Cancel enqueues a cancellation request for a run.
func (c *Client) Cancel(ctx context.Context, runID shared.ID) error {
	task, err := NewScanCancelTask(ScanCancelPayload{RunID: runID.String()})
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	if _, err := c.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("scan cancellation queued", "run_id", runID.String())
	return nil
}
