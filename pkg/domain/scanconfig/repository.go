package scanconfig

import (
	"context"
	"time"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

// Filter represents filter options for listing configurations.
type Filter struct {
	DataSourceID *int64
	Status       *Status
	ScanType     *ScanType
	Search       string
}

// Stats represents aggregated counts for configurations.
type Stats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Paused   int64 `json:"paused"`
	Archived int64 `json:"archived"`
}

// Repository defines the interface for configuration persistence.
type Repository interface {
	// Create persists a new configuration.
	Create(ctx context.Context, cfg *ScanConfiguration) error

	// GetByID retrieves a configuration by ID.
	GetByID(ctx context.Context, id shared.ID) (*ScanConfiguration, error)

	// GetByName retrieves a configuration by name.
	GetByName(ctx context.Context, name string) (*ScanConfiguration, error)

	// List lists configurations with filters and pagination.
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*ScanConfiguration], error)

	// Update persists a modified configuration. The store must compare
	// the expected revision and return shared.ErrConflict on mismatch,
	// incrementing the revision on success.
	Update(ctx context.Context, cfg *ScanConfiguration, expectedRevision int64) error

	// ListDueForExecution lists active configurations whose schedule is
	// due at the given instant.
	ListDueForExecution(ctx context.Context, now time.Time) ([]*ScanConfiguration, error)

	// UpdateNextRunAt advances the schedule's next fire time without
	// bumping the revision.
	UpdateNextRunAt(ctx context.Context, id shared.ID, nextRunAt *time.Time) error

	// RecordRun records a terminal run outcome on the rollup stats.
	RecordRun(ctx context.Context, id shared.ID, runID shared.ID, status string) error

	// GetStats returns aggregated counts.
	GetStats(ctx context.Context) (*Stats, error)
}
