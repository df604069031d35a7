// Package scanrun defines the ScanRun domain entity and its lifecycle
// state machine. A ScanRun is one execution instance of a configuration.
package scanrun

import (
	"time"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
)

// Status represents the run status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsValid checks if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// TriggerType represents what started the run.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerAPI       TriggerType = "api"
)

// IsValid checks if the trigger type is a known value.
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerManual, TriggerScheduled, TriggerAPI:
		return true
	}
	return false
}

// ScanRun tracks the execution lifecycle of one scan.
type ScanRun struct {
	ID              shared.ID
	ConfigurationID shared.ID
	Name            string
	TriggerType     TriggerType
	TriggeredBy     string

	Status       Status
	Progress     int // 0-100, non-decreasing while running
	ErrorSummary string

	// Result counts
	EntitiesScanned int
	IssuesFound     int

	// Timing
	StartedAt      *time.Time
	CompletedAt    *time.Time
	Duration       time.Duration
	LastProgressAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a new run in status pending.
func New(configurationID shared.ID, trigger TriggerType, triggeredBy string) (*ScanRun, error) {
	if configurationID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "configuration_id is required", shared.ErrValidation)
	}
	if !trigger.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid trigger_type", shared.ErrValidation)
	}

	now := time.Now()
	return &ScanRun{
		ID:              shared.NewID(),
		ConfigurationID: configurationID,
		TriggerType:     trigger,
		TriggeredBy:     triggeredBy,
		Status:          StatusPending,
		LastProgressAt:  now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Start transitions pending -> running.
func (r *ScanRun) Start() error {
	if r.Status != StatusPending {
		return shared.NewInvalidTransition(string(r.Status), string(StatusRunning))
	}
	now := time.Now()
	r.Status = StatusRunning
	r.StartedAt = &now
	r.LastProgressAt = now
	r.UpdatedAt = now
	return nil
}

// RecordProgress updates progress and counts while running. Progress is
// clamped so observed values never decrease.
func (r *ScanRun) RecordProgress(progress, entitiesScanned, issuesFound int) error {
	if r.Status != StatusRunning {
		return shared.NewDomainError("CONFLICT", "progress updates only accepted while running", shared.ErrConflict)
	}
	if progress > 100 {
		progress = 100
	}
	if progress > r.Progress {
		r.Progress = progress
	}
	if entitiesScanned > r.EntitiesScanned {
		r.EntitiesScanned = entitiesScanned
	}
	if issuesFound > r.IssuesFound {
		r.IssuesFound = issuesFound
	}
	now := time.Now()
	r.LastProgressAt = now
	r.UpdatedAt = now
	return nil
}

// Complete transitions running -> completed and finalizes counts.
func (r *ScanRun) Complete(entitiesScanned, issuesFound int) error {
	if r.Status != StatusRunning {
		return shared.NewInvalidTransition(string(r.Status), string(StatusCompleted))
	}
	now := time.Now()
	r.Status = StatusCompleted
	r.Progress = 100
	r.EntitiesScanned = entitiesScanned
	r.IssuesFound = issuesFound
	r.finish(now)
	return nil
}

// Fail transitions pending|running -> failed with an error summary. A
// run that cannot be dispatched fails without ever starting.
func (r *ScanRun) Fail(summary string) error {
	if r.Status != StatusRunning && r.Status != StatusPending {
		return shared.NewInvalidTransition(string(r.Status), string(StatusFailed))
	}
	now := time.Now()
	r.Status = StatusFailed
	r.ErrorSummary = summary
	r.finish(now)
	return nil
}

// Cancel transitions pending|running -> cancelled. The engine's state
// changes immediately regardless of whether the executor acknowledges.
func (r *ScanRun) Cancel() error {
	if r.Status.IsTerminal() {
		return shared.NewInvalidTransition(string(r.Status), string(StatusCancelled))
	}
	now := time.Now()
	r.Status = StatusCancelled
	r.finish(now)
	return nil
}

func (r *ScanRun) finish(now time.Time) {
	r.CompletedAt = &now
	if r.StartedAt != nil {
		r.Duration = now.Sub(*r.StartedAt)
	}
	r.UpdatedAt = now
}

// IsStale returns true if a running run has not reported progress within
// the grace period. Advisory only; never triggers a state transition.
func (r *ScanRun) IsStale(now time.Time, grace time.Duration) bool {
	return r.Status == StatusRunning && now.Sub(r.LastProgressAt) > grace
}
