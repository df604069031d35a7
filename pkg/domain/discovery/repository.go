package discovery

import (
	"context"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

// Repository defines the interface for discovered entity persistence.
type Repository interface {
	// CreateBatch persists a batch of discovered entities.
	CreateBatch(ctx context.Context, entities []*DiscoveredEntity) error

	// ListByRun lists entities discovered by a run, with pagination.
	ListByRun(ctx context.Context, runID shared.ID, page pagination.Pagination) (pagination.Result[*DiscoveredEntity], error)
}
