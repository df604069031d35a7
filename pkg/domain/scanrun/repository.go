package scanrun

import (
	"context"
	"time"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

// Filter represents filter options for listing runs.
type Filter struct {
	ConfigurationID *shared.ID
	Status          *Status
	TriggerType     *TriggerType
	From            *time.Time
	To              *time.Time
}

// Repository defines the interface for run persistence.
type Repository interface {
	// Create persists a new run.
	Create(ctx context.Context, run *ScanRun) error

	// GetByID retrieves a run by ID.
	GetByID(ctx context.Context, id shared.ID) (*ScanRun, error)

	// List lists runs with filters and pagination, newest first.
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*ScanRun], error)

	// Update persists run mutations. Only the run's owning worker calls
	// this; terminal runs are never updated again.
	Update(ctx context.Context, run *ScanRun) error

	// CountActiveByConfiguration counts non-terminal runs for a
	// configuration. Used for single-flight and archive guards.
	CountActiveByConfiguration(ctx context.Context, configurationID shared.ID) (int64, error)

	// ListActive lists all non-terminal runs, used to rebuild the
	// coordinator's run table on startup.
	ListActive(ctx context.Context) ([]*ScanRun, error)
}
