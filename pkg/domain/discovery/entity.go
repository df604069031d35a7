// Package discovery defines the DiscoveredEntity domain type: a data
// asset found during a run. Records are append-only.
package discovery

import (
	"time"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
)

// EntityType classifies what kind of asset was discovered.
type EntityType string

const (
	EntityTypeDatabase EntityType = "database"
	EntityTypeSchema   EntityType = "schema"
	EntityTypeTable    EntityType = "table"
	EntityTypeColumn   EntityType = "column"
	EntityTypeView     EntityType = "view"
)

// DiscoveredEntity is one asset surfaced by the executor during a run.
type DiscoveredEntity struct {
	ID              shared.ID
	RunID           shared.ID
	EntityType      EntityType
	Name            string
	Path            string
	Classifications []string
	DiscoveredAt    time.Time
}

// New creates a new discovered entity record.
func New(runID shared.ID, entityType EntityType, name, path string, classifications []string) (*DiscoveredEntity, error) {
	if runID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "run_id is required", shared.ErrValidation)
	}
	if name == "" {
		return nil, shared.NewDomainError("VALIDATION", "name is required", shared.ErrValidation)
	}
	if classifications == nil {
		classifications = []string{}
	}

	return &DiscoveredEntity{
		ID:              shared.NewID(),
		RunID:           runID,
		EntityType:      entityType,
		Name:            name,
		Path:            path,
		Classifications: classifications,
		DiscoveredAt:    time.Now(),
	}, nil
}
