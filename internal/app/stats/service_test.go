package stats

import (
	"context"
	"testing"
	"time"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanissue"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

// mockReader implements Reader with canned aggregates.
type mockReader struct {
	agg        *RunAggregates
	lastWindow Window
}

func (m *mockReader) AggregateRuns(ctx context.Context, w Window) (*RunAggregates, error) {
	m.lastWindow = w
	return m.agg, nil
}

// mockIssueRepo implements scanissue.Repository with canned severity counts.
type mockIssueRepo struct {
	counts     map[scanissue.Severity]int64
	lastFilter scanissue.Filter
}

func (m *mockIssueRepo) Create(ctx context.Context, issue *scanissue.ScanIssue) error { return nil }

func (m *mockIssueRepo) CreateBatch(ctx context.Context, issues []*scanissue.ScanIssue) error {
	return nil
}

func (m *mockIssueRepo) GetByID(ctx context.Context, id shared.ID) (*scanissue.ScanIssue, error) {
	return nil, shared.ErrNotFound
}

func (m *mockIssueRepo) List(ctx context.Context, filter scanissue.Filter, page pagination.Pagination) (pagination.Result[*scanissue.ScanIssue], error) {
	return pagination.Result[*scanissue.ScanIssue]{}, nil
}

func (m *mockIssueRepo) Update(ctx context.Context, issue *scanissue.ScanIssue) error { return nil }

func (m *mockIssueRepo) CountBySeverity(ctx context.Context, filter scanissue.Filter) (map[scanissue.Severity]int64, error) {
	m.lastFilter = filter
	return m.counts, nil
}

func newTestStats(agg *RunAggregates, counts map[scanissue.Severity]int64) (*Service, *mockReader) {
	reader := &mockReader{agg: agg}
	return NewService(reader, &mockIssueRepo{counts: counts}, logger.NewNop()), reader
}

func TestSummarize_SuccessRate(t *testing.T) {
	service, _ := newTestStats(&RunAggregates{
		Total:     10,
		Completed: 7,
		Failed:    2,
		Cancelled: 1,
	}, nil)

	summary, err := service.Summarize(context.Background(), Window{})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if summary.SuccessRate != 0.7 {
		t.Errorf("Expected success rate 0.7, got %f", summary.SuccessRate)
	}
	if summary.SuccessRate < 0 || summary.SuccessRate > 1 {
		t.Errorf("Success rate out of [0,1]: %f", summary.SuccessRate)
	}
}

func TestSummarize_EmptyWindow(t *testing.T) {
	service, _ := newTestStats(&RunAggregates{}, nil)

	summary, err := service.Summarize(context.Background(), Window{})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if summary.SuccessRate != 0 {
		t.Errorf("Expected success rate 0 for an empty window, got %f", summary.SuccessRate)
	}
	if summary.TotalRuns != 0 {
		t.Errorf("Expected 0 total runs, got %d", summary.TotalRuns)
	}
}

func TestSummarize_SeverityDistribution(t *testing.T) {
	service, _ := newTestStats(&RunAggregates{Total: 1, Completed: 1}, map[scanissue.Severity]int64{
		scanissue.SeverityCritical: 1,
		scanissue.SeverityLow:      1,
	})

	summary, err := service.Summarize(context.Background(), Window{})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if summary.IssuesBySeverity["critical"] != 1 {
		t.Errorf("Expected 1 critical, got %d", summary.IssuesBySeverity["critical"])
	}
	if summary.IssuesBySeverity["low"] != 1 {
		t.Errorf("Expected 1 low, got %d", summary.IssuesBySeverity["low"])
	}

	// Severities with no issues still appear, at zero.
	for _, sev := range scanissue.AllSeverities() {
		if _, ok := summary.IssuesBySeverity[string(sev)]; !ok {
			t.Errorf("Expected severity %s present in the distribution", sev)
		}
	}
	if summary.IssuesBySeverity["high"] != 0 {
		t.Errorf("Expected 0 high, got %d", summary.IssuesBySeverity["high"])
	}

	var total int64
	for _, n := range summary.IssuesBySeverity {
		total += n
	}
	if total != 2 {
		t.Errorf("Expected 2 issues total across severities, got %d", total)
	}
}

func TestSummarize_DefaultWindow(t *testing.T) {
	service, reader := newTestStats(&RunAggregates{}, nil)

	before := time.Now()
	if _, err := service.Summarize(context.Background(), Window{}); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if reader.lastWindow.To.Before(before) {
		t.Error("Expected the default window to end now")
	}
	span := reader.lastWindow.To.Sub(reader.lastWindow.From)
	if span != 24*time.Hour {
		t.Errorf("Expected a trailing 24h window, got %v", span)
	}
}

func TestSummarize_ExplicitWindow(t *testing.T) {
	service, reader := newTestStats(&RunAggregates{}, nil)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)

	summary, err := service.Summarize(context.Background(), Window{From: from, To: to})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if !reader.lastWindow.From.Equal(from) || !reader.lastWindow.To.Equal(to) {
		t.Error("Expected the explicit window to be passed through")
	}
	if !summary.WindowFrom.Equal(from) || !summary.WindowTo.Equal(to) {
		t.Error("Expected the summary to echo the window")
	}
}

func TestSummarize_DataSourceFilter(t *testing.T) {
	reader := &mockReader{agg: &RunAggregates{Total: 2, Completed: 2}}
	issues := &mockIssueRepo{}
	service := NewService(reader, issues, logger.NewNop())

	dsID := int64(42)
	summary, err := service.Summarize(context.Background(), Window{DataSourceID: &dsID})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if reader.lastWindow.DataSourceID == nil || *reader.lastWindow.DataSourceID != dsID {
		t.Error("Expected the data source filter to reach the run aggregation")
	}
	if issues.lastFilter.DataSourceID == nil || *issues.lastFilter.DataSourceID != dsID {
		t.Error("Expected the data source filter to reach the issue counts")
	}
	if summary.DataSourceID == nil || *summary.DataSourceID != dsID {
		t.Error("Expected the summary to echo the data source filter")
	}
}

func TestSummarize_NoDataSourceFilter(t *testing.T) {
	reader := &mockReader{agg: &RunAggregates{}}
	issues := &mockIssueRepo{}
	service := NewService(reader, issues, logger.NewNop())

	summary, err := service.Summarize(context.Background(), Window{})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if reader.lastWindow.DataSourceID != nil || issues.lastFilter.DataSourceID != nil {
		t.Error("Expected no data source restriction by default")
	}
	if summary.DataSourceID != nil {
		t.Error("Expected the summary to omit the data source when unfiltered")
	}
}

func TestSummarize_ActiveRuns(t *testing.T) {
	service, _ := newTestStats(&RunAggregates{
		Total:   5,
		Running: 2,
		Pending: 1,
	}, nil)

	summary, err := service.Summarize(context.Background(), Window{})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary.ActiveRuns != 3 {
		t.Errorf("Expected 3 active runs (running + pending), got %d", summary.ActiveRuns)
	}
}
