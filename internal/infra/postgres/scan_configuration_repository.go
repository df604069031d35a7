package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanconfig"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

// ScanConfigurationRepository implements scanconfig.Repository using PostgreSQL.
type ScanConfigurationRepository struct {
	db *DB
}

// NewScanConfigurationRepository creates a new ScanConfigurationRepository.
func NewScanConfigurationRepository(db *DB) *ScanConfigurationRepository {
	return &ScanConfigurationRepository{db: db}
}

// Ensure ScanConfigurationRepository implements scanconfig.Repository
var _ scanconfig.Repository = (*ScanConfigurationRepository)(nil)

const scanConfigurationColumns = `
	id, name, description, data_source_id,
	scan_type, scope, settings,
	schedule_enabled, schedule_cron, schedule_timezone, next_run_at,
	concurrency_policy, status, revision,
	last_run_id, last_run_at, last_run_status,
	total_runs, successful_runs, failed_runs,
	created_by, created_at, updated_at`

// Create persists a new configuration.
func (r *ScanConfigurationRepository) Create(ctx context.Context, cfg *scanconfig.ScanConfiguration) error {
	scope, err := json.Marshal(cfg.Scope)
	if err != nil {
		return fmt.Errorf("marshal scope: %w", err)
	}
	settings, err := json.Marshal(cfg.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	var schedEnabled bool
	var schedCron, schedTZ sql.NullString
	var nextRunAt sql.NullTime
	if cfg.Schedule != nil {
		schedEnabled = cfg.Schedule.Enabled
		schedCron = nullString(cfg.Schedule.Cron)
		schedTZ = nullString(cfg.Schedule.Timezone)
		nextRunAt = nullTime(cfg.Schedule.NextRunAt)
	}

	var lastRunID sql.NullString
	if cfg.LastRunID != nil {
		lastRunID = sql.NullString{String: cfg.LastRunID.String(), Valid: true}
	}

	query := `
		INSERT INTO scan_configurations (` + scanConfigurationColumns + `
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17,
			$18, $19, $20,
			$21, $22, $23
		)
	`

	_, err = r.db.execRetry(ctx, query,
		cfg.ID.String(),
		cfg.Name,
		nullString(cfg.Description),
		cfg.DataSourceID,
		string(cfg.ScanType),
		scope,
		settings,
		schedEnabled,
		schedCron,
		schedTZ,
		nextRunAt,
		string(cfg.ConcurrencyPolicy),
		string(cfg.Status),
		cfg.Revision,
		lastRunID,
		nullTime(cfg.LastRunAt),
		nullString(cfg.LastRunStatus),
		cfg.TotalRuns,
		cfg.SuccessfulRuns,
		cfg.FailedRuns,
		nullString(cfg.CreatedBy),
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("ALREADY_EXISTS", "configuration name already in use", shared.ErrAlreadyExists)
		}
		return fmt.Errorf("create scan configuration: %w", err)
	}
	return nil
}

// GetByID retrieves a configuration by ID.
func (r *ScanConfigurationRepository) GetByID(ctx context.Context, id shared.ID) (*scanconfig.ScanConfiguration, error) {
	query := `SELECT ` + scanConfigurationColumns + ` FROM scan_configurations WHERE id = $1`
	return r.scanConfiguration(r.db.QueryRowContext(ctx, query, id.String()))
}

// GetByName retrieves a configuration by name.
func (r *ScanConfigurationRepository) GetByName(ctx context.Context, name string) (*scanconfig.ScanConfiguration, error) {
	query := `SELECT ` + scanConfigurationColumns + ` FROM scan_configurations WHERE name = $1`
	return r.scanConfiguration(r.db.QueryRowContext(ctx, query, name))
}

// List lists configurations with filters and pagination.
func (r *ScanConfigurationRepository) List(ctx context.Context, filter scanconfig.Filter, page pagination.Pagination) (pagination.Result[*scanconfig.ScanConfiguration], error) {
	var conditions []string
	var args []any
	argIdx := 1

	if filter.DataSourceID != nil {
		conditions = append(conditions, fmt.Sprintf("data_source_id = $%d", argIdx))
		args = append(args, *filter.DataSourceID)
		argIdx++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*filter.Status))
		argIdx++
	}
	if filter.ScanType != nil {
		conditions = append(conditions, fmt.Sprintf("scan_type = $%d", argIdx))
		args = append(args, string(*filter.ScanType))
		argIdx++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", argIdx, argIdx))
		args = append(args, wrapLikePattern(filter.Search))
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM scan_configurations " + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*scanconfig.ScanConfiguration]{}, fmt.Errorf("count scan configurations: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT "+scanConfigurationColumns+" FROM scan_configurations %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		whereClause, argIdx, argIdx+1,
	)
	args = append(args, page.Limit(), page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*scanconfig.ScanConfiguration]{}, fmt.Errorf("list scan configurations: %w", err)
	}
	defer rows.Close()

	configs := make([]*scanconfig.ScanConfiguration, 0)
	for rows.Next() {
		cfg, err := r.scanConfiguration(rows)
		if err != nil {
			return pagination.Result[*scanconfig.ScanConfiguration]{}, err
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*scanconfig.ScanConfiguration]{}, fmt.Errorf("iterate scan configurations: %w", err)
	}

	return pagination.NewResult(configs, total, page), nil
}

// Update persists a modified configuration under optimistic concurrency.
func (r *ScanConfigurationRepository) Update(ctx context.Context, cfg *scanconfig.ScanConfiguration, expectedRevision int64) error {
	scope, err := json.Marshal(cfg.Scope)
	if err != nil {
		return fmt.Errorf("marshal scope: %w", err)
	}
	settings, err := json.Marshal(cfg.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	var schedEnabled bool
	var schedCron, schedTZ sql.NullString
	var nextRunAt sql.NullTime
	if cfg.Schedule != nil {
		schedEnabled = cfg.Schedule.Enabled
		schedCron = nullString(cfg.Schedule.Cron)
		schedTZ = nullString(cfg.Schedule.Timezone)
		nextRunAt = nullTime(cfg.Schedule.NextRunAt)
	}

	var lastRunID sql.NullString
	if cfg.LastRunID != nil {
		lastRunID = sql.NullString{String: cfg.LastRunID.String(), Valid: true}
	}

	query := `
		UPDATE scan_configurations SET
			name = $1, description = $2, data_source_id = $3,
			scan_type = $4, scope = $5, settings = $6,
			schedule_enabled = $7, schedule_cron = $8, schedule_timezone = $9, next_run_at = $10,
			concurrency_policy = $11, status = $12,
			revision = revision + 1,
			last_run_id = $13, last_run_at = $14, last_run_status = $15,
			total_runs = $16, successful_runs = $17, failed_runs = $18,
			updated_at = $19
		WHERE id = $20 AND revision = $21
	`

	result, err := r.db.execRetry(ctx, query,
		cfg.Name,
		nullString(cfg.Description),
		cfg.DataSourceID,
		string(cfg.ScanType),
		scope,
		settings,
		schedEnabled,
		schedCron,
		schedTZ,
		nextRunAt,
		string(cfg.ConcurrencyPolicy),
		string(cfg.Status),
		lastRunID,
		nullTime(cfg.LastRunAt),
		nullString(cfg.LastRunStatus),
		cfg.TotalRuns,
		cfg.SuccessfulRuns,
		cfg.FailedRuns,
		time.Now(),
		cfg.ID.String(),
		expectedRevision,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("ALREADY_EXISTS", "configuration name already in use", shared.ErrAlreadyExists)
		}
		return fmt.Errorf("update scan configuration: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update scan configuration: %w", err)
	}
	if affected == 0 {
		// either the row is gone or the revision moved
		if _, gerr := r.GetByID(ctx, cfg.ID); gerr != nil {
			return gerr
		}
		return shared.NewDomainError("REVISION_MISMATCH", "configuration was modified concurrently, re-read and retry", shared.ErrConflict)
	}
	return nil
}

// ListDueForExecution lists active configurations whose schedule is due.
func (r *ScanConfigurationRepository) ListDueForExecution(ctx context.Context, now time.Time) ([]*scanconfig.ScanConfiguration, error) {
	query := `
		SELECT ` + scanConfigurationColumns + `
		FROM scan_configurations
		WHERE status = 'active' AND schedule_enabled = TRUE AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list due configurations: %w", err)
	}
	defer rows.Close()

	configs := make([]*scanconfig.ScanConfiguration, 0)
	for rows.Next() {
		cfg, err := r.scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// UpdateNextRunAt advances the schedule without bumping the revision.
func (r *ScanConfigurationRepository) UpdateNextRunAt(ctx context.Context, id shared.ID, nextRunAt *time.Time) error {
	query := `UPDATE scan_configurations SET next_run_at = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.execRetry(ctx, query, nullTime(nextRunAt), time.Now(), id.String())
	if err != nil {
		return fmt.Errorf("update next run at: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return shared.NewDomainError("NOT_FOUND", "configuration not found", shared.ErrNotFound)
	}
	return nil
}

// RecordRun rolls a terminal run outcome into the configuration stats.
func (r *ScanConfigurationRepository) RecordRun(ctx context.Context, id shared.ID, runID shared.ID, status string) error {
	query := `
		UPDATE scan_configurations SET
			last_run_id = $1, last_run_at = $2, last_run_status = $3,
			total_runs = total_runs + 1,
			successful_runs = successful_runs + CASE WHEN $3 = 'completed' THEN 1 ELSE 0 END,
			failed_runs = failed_runs + CASE WHEN $3 = 'failed' THEN 1 ELSE 0 END,
			updated_at = $2
		WHERE id = $4
	`

	result, err := r.db.execRetry(ctx, query, runID.String(), time.Now(), status, id.String())
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return shared.NewDomainError("NOT_FOUND", "configuration not found", shared.ErrNotFound)
	}
	return nil
}

// GetStats returns aggregated configuration counts.
func (r *ScanConfigurationRepository) GetStats(ctx context.Context) (*scanconfig.Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'paused'),
			COUNT(*) FILTER (WHERE status = 'archived')
		FROM scan_configurations
	`

	stats := &scanconfig.Stats{}
	err := r.db.QueryRowContext(ctx, query).Scan(&stats.Total, &stats.Active, &stats.Paused, &stats.Archived)
	if err != nil {
		return nil, fmt.Errorf("get configuration stats: %w", err)
	}
	return stats, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *ScanConfigurationRepository) scanConfiguration(row scanner) (*scanconfig.ScanConfiguration, error) {
	var (
		cfg          scanconfig.ScanConfiguration
		idStr        string
		description  sql.NullString
		scanType     string
		scopeJSON    []byte
		settingsJSON []byte
		schedEnabled bool
		schedCron    sql.NullString
		schedTZ      sql.NullString
		nextRunAt    sql.NullTime
		policy       string
		status       string
		lastRunID    sql.NullString
		lastRunAt    sql.NullTime
		lastStatus   sql.NullString
		createdBy    sql.NullString
	)

	err := row.Scan(
		&idStr, &cfg.Name, &description, &cfg.DataSourceID,
		&scanType, &scopeJSON, &settingsJSON,
		&schedEnabled, &schedCron, &schedTZ, &nextRunAt,
		&policy, &status, &cfg.Revision,
		&lastRunID, &lastRunAt, &lastStatus,
		&cfg.TotalRuns, &cfg.SuccessfulRuns, &cfg.FailedRuns,
		&createdBy, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewDomainError("NOT_FOUND", "configuration not found", shared.ErrNotFound)
		}
		return nil, fmt.Errorf("scan configuration row: %w", err)
	}

	cfg.ID, err = shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse configuration id: %w", err)
	}
	cfg.Description = nullStringValue(description)
	cfg.ScanType = scanconfig.ScanType(scanType)
	cfg.ConcurrencyPolicy = scanconfig.ConcurrencyPolicy(policy)
	cfg.Status = scanconfig.Status(status)
	cfg.LastRunAt = nullTimeValue(lastRunAt)
	cfg.LastRunStatus = nullStringValue(lastStatus)
	cfg.CreatedBy = nullStringValue(createdBy)

	if len(scopeJSON) > 0 {
		if err := json.Unmarshal(scopeJSON, &cfg.Scope); err != nil {
			return nil, fmt.Errorf("unmarshal scope: %w", err)
		}
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &cfg.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}

	if schedCron.Valid {
		cfg.Schedule = &scanconfig.Schedule{
			Enabled:   schedEnabled,
			Cron:      schedCron.String,
			Timezone:  nullStringValue(schedTZ),
			NextRunAt: nullTimeValue(nextRunAt),
		}
	}

	if lastRunID.Valid {
		id, err := shared.IDFromString(lastRunID.String)
		if err == nil {
			cfg.LastRunID = &id
		}
	}
	return &cfg, nil
}
