package scanissue

import (
	"context"
	"time"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

// Filter represents filter options for listing issues.
type Filter struct {
	RunID           *shared.ID
	ConfigurationID *shared.ID
	Severity        *Severity
	Type            string
	Status          *Status
	From            *time.Time
	To              *time.Time

	// DataSourceID narrows to issues whose configuration targets the
	// given data source.
	DataSourceID *int64
}

// Repository defines the interface for issue persistence.
type Repository interface {
	// Create persists a new issue.
	Create(ctx context.Context, issue *ScanIssue) error

	// CreateBatch persists a batch of issues from one executor callback.
	CreateBatch(ctx context.Context, issues []*ScanIssue) error

	// GetByID retrieves an issue by ID.
	GetByID(ctx context.Context, id shared.ID) (*ScanIssue, error)

	// List lists issues with filters and pagination, newest first.
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*ScanIssue], error)

	// Update persists issue mutations.
	Update(ctx context.Context, issue *ScanIssue) error

	// CountBySeverity counts issues per severity within the filter window.
	CountBySeverity(ctx context.Context, filter Filter) (map[Severity]int64, error)
}
