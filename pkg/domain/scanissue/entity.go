// Package scanissue defines the ScanIssue domain entity and its triage
// state machine.
package scanissue

import (
	"time"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
)

// Severity reflects the detector's assessment. Immutable after detection.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// IsValid checks if the severity is a known value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// AllSeverities returns all valid severities, highest first.
func AllSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}

// Status represents the triage status.
type Status string

const (
	StatusDetected Status = "detected"
	StatusAssigned Status = "assigned"
	StatusResolved Status = "resolved"
)

// IsValid checks if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusDetected, StatusAssigned, StatusResolved:
		return true
	}
	return false
}

// ScanIssue is a problem discovered during a run.
type ScanIssue struct {
	ID              shared.ID
	RunID           shared.ID
	ConfigurationID shared.ID

	Severity    Severity
	Type        string
	Title       string
	Description string

	Status          Status
	Assignee        string
	ResolutionNotes string

	DetectedAt time.Time
	ResolvedAt *time.Time
	UpdatedAt  time.Time
}

// New creates a new issue in status detected.
func New(runID, configurationID shared.ID, severity Severity, issueType, title string) (*ScanIssue, error) {
	if runID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "run_id is required", shared.ErrValidation)
	}
	if !severity.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid severity", shared.ErrValidation)
	}
	if title == "" {
		return nil, shared.NewDomainError("VALIDATION", "title is required", shared.ErrValidation)
	}

	now := time.Now()
	return &ScanIssue{
		ID:              shared.NewID(),
		RunID:           runID,
		ConfigurationID: configurationID,
		Severity:        severity,
		Type:            issueType,
		Title:           title,
		Status:          StatusDetected,
		DetectedAt:      now,
		UpdatedAt:       now,
	}, nil
}

// Assign transitions detected|assigned -> assigned. Reassignment of an
// already-assigned issue is permitted; a resolved issue never regresses.
func (i *ScanIssue) Assign(assignee string) error {
	if assignee == "" {
		return shared.NewDomainError("VALIDATION", "assignee is required", shared.ErrValidation)
	}
	if i.Status == StatusResolved {
		return shared.NewInvalidTransition(string(i.Status), string(StatusAssigned))
	}
	i.Status = StatusAssigned
	i.Assignee = assignee
	i.UpdatedAt = time.Now()
	return nil
}

// Resolve transitions any non-resolved status -> resolved. Direct
// resolution from detected is permitted, skipping assignment.
func (i *ScanIssue) Resolve(notes string) error {
	if i.Status == StatusResolved {
		return shared.NewInvalidTransition(string(i.Status), string(StatusResolved))
	}
	now := time.Now()
	i.Status = StatusResolved
	i.ResolutionNotes = notes
	i.ResolvedAt = &now
	i.UpdatedAt = now
	return nil
}

// UpdateMetadata changes type/title/description without affecting the
// triage status. Severity is intentionally not updatable.
func (i *ScanIssue) UpdateMetadata(issueType, title, description string) error {
	if title == "" {
		return shared.NewDomainError("VALIDATION", "title is required", shared.ErrValidation)
	}
	i.Type = issueType
	i.Title = title
	i.Description = description
	i.UpdatedAt = time.Now()
	return nil
}
