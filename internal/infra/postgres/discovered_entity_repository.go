package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/discovery"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

// DiscoveredEntityRepository implements discovery.Repository using PostgreSQL.
type DiscoveredEntityRepository struct {
	db *DB
}

// NewDiscoveredEntityRepository creates a new DiscoveredEntityRepository.
func NewDiscoveredEntityRepository(db *DB) *DiscoveredEntityRepository {
	return &DiscoveredEntityRepository{db: db}
}

// Ensure DiscoveredEntityRepository implements discovery.Repository
var _ discovery.Repository = (*DiscoveredEntityRepository)(nil)

// CreateBatch persists a batch of discovered entities in one transaction.
func (r *DiscoveredEntityRepository) CreateBatch(ctx context.Context, entities []*discovery.DiscoveredEntity) error {
	if len(entities) == 0 {
		return nil
	}

	query := `
		INSERT INTO discovered_entities (
			id, run_id, entity_type, name, path, classifications, discovered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare entity insert: %w", err)
		}
		defer stmt.Close()

		for _, entity := range entities {
			classifications, err := json.Marshal(entity.Classifications)
			if err != nil {
				return fmt.Errorf("marshal classifications: %w", err)
			}
			_, err = stmt.ExecContext(ctx,
				entity.ID.String(),
				entity.RunID.String(),
				string(entity.EntityType),
				entity.Name,
				nullString(entity.Path),
				classifications,
				entity.DiscoveredAt,
			)
			if err != nil {
				return fmt.Errorf("insert discovered entity: %w", err)
			}
		}
		return nil
	})
}

// ListByRun lists entities discovered by a run, oldest first.
func (r *DiscoveredEntityRepository) ListByRun(ctx context.Context, runID shared.ID, page pagination.Pagination) (pagination.Result[*discovery.DiscoveredEntity], error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM discovered_entities WHERE run_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, runID.String()).Scan(&total); err != nil {
		return pagination.Result[*discovery.DiscoveredEntity]{}, fmt.Errorf("count discovered entities: %w", err)
	}

	query := `
		SELECT id, run_id, entity_type, name, path, classifications, discovered_at
		FROM discovered_entities
		WHERE run_id = $1
		ORDER BY discovered_at ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, runID.String(), page.Limit(), page.Offset())
	if err != nil {
		return pagination.Result[*discovery.DiscoveredEntity]{}, fmt.Errorf("list discovered entities: %w", err)
	}
	defer rows.Close()

	entities := make([]*discovery.DiscoveredEntity, 0)
	for rows.Next() {
		var (
			entity              discovery.DiscoveredEntity
			idStr               string
			runIDStr            string
			entityType          string
			path                sql.NullString
			classificationsJSON []byte
		)
		err := rows.Scan(&idStr, &runIDStr, &entityType, &entity.Name, &path, &classificationsJSON, &entity.DiscoveredAt)
		if err != nil {
			return pagination.Result[*discovery.DiscoveredEntity]{}, fmt.Errorf("scan entity row: %w", err)
		}

		entity.ID, err = shared.IDFromString(idStr)
		if err != nil {
			return pagination.Result[*discovery.DiscoveredEntity]{}, fmt.Errorf("parse entity id: %w", err)
		}
		entity.RunID, err = shared.IDFromString(runIDStr)
		if err != nil {
			return pagination.Result[*discovery.DiscoveredEntity]{}, fmt.Errorf("parse run id: %w", err)
		}
		entity.EntityType = discovery.EntityType(entityType)
		entity.Path = nullStringValue(path)
		entity.Classifications = []string{}
		if len(classificationsJSON) > 0 {
			if err := json.Unmarshal(classificationsJSON, &entity.Classifications); err != nil {
				return pagination.Result[*discovery.DiscoveredEntity]{}, fmt.Errorf("unmarshal classifications: %w", err)
			}
		}
		entities = append(entities, &entity)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*discovery.DiscoveredEntity]{}, fmt.Errorf("iterate discovered entities: %w", err)
	}

	return pagination.NewResult(entities, total, page), nil
}
