// Package stats computes on-demand operational summaries over a time
// window: run outcomes, success rate, durations and issue severity
// distribution. Nothing here is pre-aggregated; every call reads the
// store so the numbers always match what the API returns elsewhere.
package stats

import (
	"context"
	"time"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanissue"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

// RunAggregates is the raw rollup the store computes over runs created
// inside a window.
type RunAggregates struct {
	Total     int64
	Completed int64
	Failed    int64
	Cancelled int64
	Running   int64
	Pending   int64

	// AvgDuration averages completed runs only.
	AvgDuration time.Duration

	TotalEntitiesScanned int64
	TotalIssuesFound     int64

	// DistinctDataSources counts data sources referenced by the
	// configurations of runs in the window.
	DistinctDataSources int64
}

// Window bounds a summary request. A nil DataSourceID means all data
// sources.
type Window struct {
	From         time.Time
	To           time.Time
	DataSourceID *int64
}

// Reader is the store-side aggregation port.
type Reader interface {
	AggregateRuns(ctx context.Context, w Window) (*RunAggregates, error)
}

// Summary is the API-facing report for one window.
type Summary struct {
	WindowFrom   time.Time `json:"window_from"`
	WindowTo     time.Time `json:"window_to"`
	DataSourceID *int64    `json:"data_source_id,omitempty"`

	TotalRuns     int64 `json:"total_runs"`
	CompletedRuns int64 `json:"completed_runs"`
	FailedRuns    int64 `json:"failed_runs"`
	CancelledRuns int64 `json:"cancelled_runs"`
	ActiveRuns    int64 `json:"active_runs"`

	// SuccessRate is completed / total, 0 when the window has no runs.
	SuccessRate float64 `json:"success_rate"`

	AvgDurationMS int64 `json:"avg_duration_ms"`

	TotalEntitiesScanned int64 `json:"total_entities_scanned"`
	TotalIssuesFound     int64 `json:"total_issues_found"`
	DistinctDataSources  int64 `json:"distinct_data_sources"`

	IssuesBySeverity map[string]int64 `json:"issues_by_severity"`
}

// Service computes summaries.
type Service struct {
	reader    Reader
	issueRepo scanissue.Repository
	logger    *logger.Logger
}

// NewService creates a new Service.
func NewService(reader Reader, issueRepo scanissue.Repository, log *logger.Logger) *Service {
	return &Service{
		reader:    reader,
		issueRepo: issueRepo,
		logger:    log.With("service", "stats"),
	}
}

// Summarize builds the report for the window. A zero `To` means now; a
// zero `From` means the trailing 24 hours. When DataSourceID is set
// both run and issue counts are restricted to that data source.
func (s *Service) Summarize(ctx context.Context, w Window) (*Summary, error) {
	if w.To.IsZero() {
		w.To = time.Now()
	}
	if w.From.IsZero() {
		w.From = w.To.Add(-24 * time.Hour)
	}

	agg, err := s.reader.AggregateRuns(ctx, w)
	if err != nil {
		return nil, err
	}

	issueFilter := scanissue.Filter{From: &w.From, To: &w.To, DataSourceID: w.DataSourceID}
	severityCounts, err := s.issueRepo.CountBySeverity(ctx, issueFilter)
	if err != nil {
		return nil, err
	}

	bySeverity := make(map[string]int64, len(scanissue.AllSeverities()))
	for _, sev := range scanissue.AllSeverities() {
		bySeverity[string(sev)] = severityCounts[sev]
	}

	summary := &Summary{
		WindowFrom:           w.From,
		WindowTo:             w.To,
		DataSourceID:         w.DataSourceID,
		TotalRuns:            agg.Total,
		CompletedRuns:        agg.Completed,
		FailedRuns:           agg.Failed,
		CancelledRuns:        agg.Cancelled,
		ActiveRuns:           agg.Running + agg.Pending,
		AvgDurationMS:        agg.AvgDuration.Milliseconds(),
		TotalEntitiesScanned: agg.TotalEntitiesScanned,
		TotalIssuesFound:     agg.TotalIssuesFound,
		DistinctDataSources:  agg.DistinctDataSources,
		IssuesBySeverity:     bySeverity,
	}

	if agg.Total > 0 {
		summary.SuccessRate = float64(agg.Completed) / float64(agg.Total)
	}
	return summary, nil
}
