// Package triage implements issue intake and workflow: batch ingestion
// from executor reports, assignment and resolution.
package triage

import (
	"context"

	"github.com/seiforesti/data-wave-sub013/internal/app/stream"
	"github.com/seiforesti/data-wave-sub013/internal/metrics"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanissue"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanrun"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

// Service handles issue triage operations.
type Service struct {
	issueRepo scanissue.Repository
	runRepo   scanrun.Repository
	stream    *stream.Stream
	logger    *logger.Logger
}

// NewService creates a new Service.
func NewService(issueRepo scanissue.Repository, runRepo scanrun.Repository, st *stream.Stream, log *logger.Logger) *Service {
	return &Service{
		issueRepo: issueRepo,
		runRepo:   runRepo,
		stream:    st,
		logger:    log.With("service", "triage"),
	}
}

// IngestItem is one issue in an executor report.
type IngestItem struct {
	Severity    string
	Type        string
	Title       string
	Description string
}

// Ingest records a batch of detected issues against a run. The whole
// batch is validated before any issue is stored.
func (s *Service) Ingest(ctx context.Context, runID string, items []IngestItem) ([]*scanissue.ScanIssue, error) {
	id, err := shared.IDFromString(runID)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION", "invalid run id", shared.ErrValidation)
	}

	run, err := s.runRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	issues := make([]*scanissue.ScanIssue, 0, len(items))
	for _, item := range items {
		issue, err := scanissue.New(run.ID, run.ConfigurationID, scanissue.Severity(item.Severity), item.Type, item.Title)
		if err != nil {
			return nil, err
		}
		issue.Description = item.Description
		issues = append(issues, issue)
	}

	if err := s.issueRepo.CreateBatch(ctx, issues); err != nil {
		return nil, err
	}

	for _, issue := range issues {
		metrics.IssuesDetectedTotal.WithLabelValues(string(issue.Severity)).Inc()
		s.stream.Publish(stream.EventIssueDetected, run.ID.String(), map[string]any{
			"issue_id": issue.ID.String(),
			"severity": string(issue.Severity),
			"type":     issue.Type,
			"title":    issue.Title,
		})
	}

	s.logger.Info("issues ingested", "run_id", run.ID.String(), "count", len(issues))
	return issues, nil
}

// Get retrieves an issue by ID.
func (s *Service) Get(ctx context.Context, id string) (*scanissue.ScanIssue, error) {
	issueID, err := shared.IDFromString(id)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION", "invalid issue id", shared.ErrValidation)
	}
	return s.issueRepo.GetByID(ctx, issueID)
}

// List lists issues with filters and pagination.
func (s *Service) List(ctx context.Context, filter scanissue.Filter, page pagination.Pagination) (pagination.Result[*scanissue.ScanIssue], error) {
	return s.issueRepo.List(ctx, filter, page)
}

// Assign assigns an issue to someone. Reassignment is allowed while the
// issue is open.
func (s *Service) Assign(ctx context.Context, id, assignee string) (*scanissue.ScanIssue, error) {
	return s.mutate(ctx, id, func(issue *scanissue.ScanIssue) error {
		return issue.Assign(assignee)
	})
}

// Resolve closes an issue with optional notes. Direct resolution of an
// unassigned issue is allowed.
func (s *Service) Resolve(ctx context.Context, id, notes string) (*scanissue.ScanIssue, error) {
	return s.mutate(ctx, id, func(issue *scanissue.ScanIssue) error {
		return issue.Resolve(notes)
	})
}

// UpdateInput is a partial metadata patch. Severity is immutable.
type UpdateInput struct {
	Type        *string
	Title       *string
	Description *string
}

// Update patches an issue's descriptive fields.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*scanissue.ScanIssue, error) {
	return s.mutate(ctx, id, func(issue *scanissue.ScanIssue) error {
		issueType := issue.Type
		title := issue.Title
		description := issue.Description
		if input.Type != nil {
			issueType = *input.Type
		}
		if input.Title != nil {
			title = *input.Title
		}
		if input.Description != nil {
			description = *input.Description
		}
		return issue.UpdateMetadata(issueType, title, description)
	})
}

func (s *Service) mutate(ctx context.Context, id string, fn func(*scanissue.ScanIssue) error) (*scanissue.ScanIssue, error) {
	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(issue); err != nil {
		return nil, err
	}
	if err := s.issueRepo.Update(ctx, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// CountBySeverity returns open and total counts keyed by severity.
func (s *Service) CountBySeverity(ctx context.Context, filter scanissue.Filter) (map[scanissue.Severity]int64, error) {
	return s.issueRepo.CountBySeverity(ctx, filter)
}
