// Package discovery records the catalog entities an executor reports
// while scanning. Records are append-only; there is no mutation surface.
package discovery

import (
	"context"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/discovery"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanrun"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

// Service handles discovered entity intake and listing.
type Service struct {
	repo    discovery.Repository
	runRepo scanrun.Repository
	logger  *logger.Logger
}

// NewService creates a new Service.
func NewService(repo discovery.Repository, runRepo scanrun.Repository, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		runRepo: runRepo,
		logger:  log.With("service", "discovery"),
	}
}

// IngestItem is one entity in an executor report.
type IngestItem struct {
	EntityType      string
	Name            string
	Path            string
	Classifications []string
}

// Ingest records a batch of discovered entities against a run.
func (s *Service) Ingest(ctx context.Context, runID string, items []IngestItem) ([]*discovery.DiscoveredEntity, error) {
	id, err := shared.IDFromString(runID)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION", "invalid run id", shared.ErrValidation)
	}

	run, err := s.runRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	entities := make([]*discovery.DiscoveredEntity, 0, len(items))
	for _, item := range items {
		entity, err := discovery.New(run.ID, discovery.EntityType(item.EntityType), item.Name, item.Path, item.Classifications)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	if err := s.repo.CreateBatch(ctx, entities); err != nil {
		return nil, err
	}

	s.logger.Info("entities recorded", "run_id", run.ID.String(), "count", len(entities))
	return entities, nil
}

// ListByRun lists the entities discovered by a run.
func (s *Service) ListByRun(ctx context.Context, runID string, page pagination.Pagination) (pagination.Result[*discovery.DiscoveredEntity], error) {
	id, err := shared.IDFromString(runID)
	if err != nil {
		return pagination.Result[*discovery.DiscoveredEntity]{}, shared.NewDomainError("VALIDATION", "invalid run id", shared.ErrValidation)
	}
	return s.repo.ListByRun(ctx, id, page)
}
