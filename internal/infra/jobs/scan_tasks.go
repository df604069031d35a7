// Package jobs provides background job definitions and handlers using Asynq.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task types for scan dispatch jobs
const (
	TypeScanExecute = "scan:execute"
	TypeScanCancel  = "scan:cancel"
)

// QueueScans is the queue scan dispatch tasks land on.
const QueueScans = "scans"

// ScanExecutePayload carries everything the executor needs to start a scan.
type ScanExecutePayload struct {
	RunID           string   `json:"run_id"`
	ConfigurationID string   `json:"configuration_id"`
	ScanType        string   `json:"scan_type"`
	Databases       []string `json:"databases,omitempty"`
	Schemas         []string `json:"schemas,omitempty"`
	Tables          []string `json:"tables,omitempty"`

	EnablePIIDetection   bool `json:"enable_pii_detection"`
	EnableClassification bool `json:"enable_classification"`
	EnableLineage        bool `json:"enable_lineage"`
	EnableQuality        bool `json:"enable_quality"`
	SampleSize           int  `json:"sample_size,omitempty"`
	Parallelism          int  `json:"parallelism"`

	DataSourceID int64 `json:"data_source_id"`
}

// ScanCancelPayload identifies the run to cancel.
type ScanCancelPayload struct {
	RunID string `json:"run_id"`
}

// NewScanExecuteTask creates a new scan dispatch task.
func NewScanExecuteTask(payload ScanExecutePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scan payload: %w", err)
	}
	return asynq.NewTask(
		TypeScanExecute,
		data,
		asynq.Queue(QueueScans),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
	), nil
}

// NewScanCancelTask creates a new scan cancellation task.
func NewScanCancelTask(payload ScanCancelPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cancel payload: %w", err)
	}
	return asynq.NewTask(
		TypeScanCancel,
		data,
		asynq.Queue(QueueScans),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}
