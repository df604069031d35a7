package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanrun"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

// ScanRunRepository implements scanrun.Repository using PostgreSQL.
type ScanRunRepository struct {
	db *DB
}

// NewScanRunRepository creates a new ScanRunRepository.
func NewScanRunRepository(db *DB) *ScanRunRepository {
	return &ScanRunRepository{db: db}
}

// Ensure ScanRunRepository implements scanrun.Repository
var _ scanrun.Repository = (*ScanRunRepository)(nil)

const scanRunColumns = `
	id, configuration_id, name, trigger_type, triggered_by,
	status, progress, error_summary,
	entities_scanned, issues_found,
	started_at, completed_at, duration_ms, last_progress_at,
	created_at, updated_at`

// Create persists a new run.
func (r *ScanRunRepository) Create(ctx context.Context, run *scanrun.ScanRun) error {
	query := `
		INSERT INTO scan_runs (` + scanRunColumns + `
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10,
			$11, $12, $13, $14,
			$15, $16
		)
	`

	_, err := r.db.execRetry(ctx, query,
		run.ID.String(),
		run.ConfigurationID.String(),
		nullString(run.Name),
		string(run.TriggerType),
		nullString(run.TriggeredBy),
		string(run.Status),
		run.Progress,
		nullString(run.ErrorSummary),
		run.EntitiesScanned,
		run.IssuesFound,
		nullTime(run.StartedAt),
		nullTime(run.CompletedAt),
		run.Duration.Milliseconds(),
		run.LastProgressAt,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create scan run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by ID.
func (r *ScanRunRepository) GetByID(ctx context.Context, id shared.ID) (*scanrun.ScanRun, error) {
	query := `SELECT ` + scanRunColumns + ` FROM scan_runs WHERE id = $1`
	return r.scanRun(r.db.QueryRowContext(ctx, query, id.String()))
}

// List lists runs with filters and pagination, newest first.
func (r *ScanRunRepository) List(ctx context.Context, filter scanrun.Filter, page pagination.Pagination) (pagination.Result[*scanrun.ScanRun], error) {
	var conditions []string
	var args []any
	argIdx := 1

	if filter.ConfigurationID != nil {
		conditions = append(conditions, fmt.Sprintf("configuration_id = $%d", argIdx))
		args = append(args, filter.ConfigurationID.String())
		argIdx++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*filter.Status))
		argIdx++
	}
	if filter.TriggerType != nil {
		conditions = append(conditions, fmt.Sprintf("trigger_type = $%d", argIdx))
		args = append(args, string(*filter.TriggerType))
		argIdx++
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *filter.From)
		argIdx++
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *filter.To)
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM scan_runs " + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*scanrun.ScanRun]{}, fmt.Errorf("count scan runs: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT "+scanRunColumns+" FROM scan_runs %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		whereClause, argIdx, argIdx+1,
	)
	args = append(args, page.Limit(), page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*scanrun.ScanRun]{}, fmt.Errorf("list scan runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*scanrun.ScanRun, 0)
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return pagination.Result[*scanrun.ScanRun]{}, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*scanrun.ScanRun]{}, fmt.Errorf("iterate scan runs: %w", err)
	}

	return pagination.NewResult(runs, total, page), nil
}

// Update persists run mutations.
func (r *ScanRunRepository) Update(ctx context.Context, run *scanrun.ScanRun) error {
	query := `
		UPDATE scan_runs SET
			status = $1, progress = $2, error_summary = $3,
			entities_scanned = $4, issues_found = $5,
			started_at = $6, completed_at = $7, duration_ms = $8, last_progress_at = $9,
			updated_at = $10
		WHERE id = $11
	`

	result, err := r.db.execRetry(ctx, query,
		string(run.Status),
		run.Progress,
		nullString(run.ErrorSummary),
		run.EntitiesScanned,
		run.IssuesFound,
		nullTime(run.StartedAt),
		nullTime(run.CompletedAt),
		run.Duration.Milliseconds(),
		run.LastProgressAt,
		time.Now(),
		run.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update scan run: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return shared.NewDomainError("NOT_FOUND", "run not found", shared.ErrNotFound)
	}
	return nil
}

// CountActiveByConfiguration counts non-terminal runs for a configuration.
func (r *ScanRunRepository) CountActiveByConfiguration(ctx context.Context, configurationID shared.ID) (int64, error) {
	query := `SELECT COUNT(*) FROM scan_runs WHERE configuration_id = $1 AND status IN ('pending', 'running')`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, configurationID.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active runs: %w", err)
	}
	return count, nil
}

// ListActive lists all non-terminal runs.
func (r *ScanRunRepository) ListActive(ctx context.Context) ([]*scanrun.ScanRun, error) {
	query := `SELECT ` + scanRunColumns + ` FROM scan_runs WHERE status IN ('pending', 'running') ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*scanrun.ScanRun, 0)
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *ScanRunRepository) scanRun(row scanner) (*scanrun.ScanRun, error) {
	var (
		run          scanrun.ScanRun
		idStr        string
		cfgIDStr     string
		name         sql.NullString
		triggerType  string
		triggeredBy  sql.NullString
		status       string
		errorSummary sql.NullString
		startedAt    sql.NullTime
		completedAt  sql.NullTime
		durationMS   int64
	)

	err := row.Scan(
		&idStr, &cfgIDStr, &name, &triggerType, &triggeredBy,
		&status, &run.Progress, &errorSummary,
		&run.EntitiesScanned, &run.IssuesFound,
		&startedAt, &completedAt, &durationMS, &run.LastProgressAt,
		&run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewDomainError("NOT_FOUND", "run not found", shared.ErrNotFound)
		}
		return nil, fmt.Errorf("scan run row: %w", err)
	}

	run.ID, err = shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	run.ConfigurationID, err = shared.IDFromString(cfgIDStr)
	if err != nil {
		return nil, fmt.Errorf("parse configuration id: %w", err)
	}
	run.Name = nullStringValue(name)
	run.TriggerType = scanrun.TriggerType(triggerType)
	run.TriggeredBy = nullStringValue(triggeredBy)
	run.Status = scanrun.Status(status)
	run.ErrorSummary = nullStringValue(errorSummary)
	run.StartedAt = nullTimeValue(startedAt)
	run.CompletedAt = nullTimeValue(completedAt)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}
