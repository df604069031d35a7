package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanissue"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

// ScanIssueRepository implements scanissue.Repository using PostgreSQL.
type ScanIssueRepository struct {
	db *DB
}

// NewScanIssueRepository creates a new ScanIssueRepository.
func NewScanIssueRepository(db *DB) *ScanIssueRepository {
	return &ScanIssueRepository{db: db}
}

// Ensure ScanIssueRepository implements scanissue.Repository
var _ scanissue.Repository = (*ScanIssueRepository)(nil)

const scanIssueColumns = `
	id, run_id, configuration_id,
	severity, type, title, description,
	status, assignee, resolution_notes,
	detected_at, resolved_at, updated_at`

// Create persists a new issue.
func (r *ScanIssueRepository) Create(ctx context.Context, issue *scanissue.ScanIssue) error {
	query := `
		INSERT INTO scan_issues (` + scanIssueColumns + `
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13
		)
	`

	_, err := r.db.execRetry(ctx, query, issueArgs(issue)...)
	if err != nil {
		return fmt.Errorf("create scan issue: %w", err)
	}
	return nil
}

// CreateBatch persists a batch of issues in one transaction.
func (r *ScanIssueRepository) CreateBatch(ctx context.Context, issues []*scanissue.ScanIssue) error {
	if len(issues) == 0 {
		return nil
	}

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("scan_issues",
			"id", "run_id", "configuration_id",
			"severity", "type", "title", "description",
			"status", "assignee", "resolution_notes",
			"detected_at", "resolved_at", "updated_at",
		))
		if err != nil {
			return fmt.Errorf("prepare issue copy: %w", err)
		}
		defer stmt.Close()

		for _, issue := range issues {
			if _, err := stmt.ExecContext(ctx, issueArgs(issue)...); err != nil {
				return fmt.Errorf("copy scan issue: %w", err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			return fmt.Errorf("flush issue copy: %w", err)
		}
		return nil
	})
}

func issueArgs(issue *scanissue.ScanIssue) []any {
	return []any{
		issue.ID.String(),
		issue.RunID.String(),
		issue.ConfigurationID.String(),
		string(issue.Severity),
		nullString(issue.Type),
		issue.Title,
		nullString(issue.Description),
		string(issue.Status),
		nullString(issue.Assignee),
		nullString(issue.ResolutionNotes),
		issue.DetectedAt,
		nullTime(issue.ResolvedAt),
		issue.UpdatedAt,
	}
}

// GetByID retrieves an issue by ID.
func (r *ScanIssueRepository) GetByID(ctx context.Context, id shared.ID) (*scanissue.ScanIssue, error) {
	query := `SELECT ` + scanIssueColumns + ` FROM scan_issues WHERE id = $1`
	return r.scanIssue(r.db.QueryRowContext(ctx, query, id.String()))
}

// List lists issues with filters and pagination, newest first.
func (r *ScanIssueRepository) List(ctx context.Context, filter scanissue.Filter, page pagination.Pagination) (pagination.Result[*scanissue.ScanIssue], error) {
	whereClause, args, argIdx := issueWhere(filter)

	var total int64
	countQuery := "SELECT COUNT(*) FROM scan_issues " + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*scanissue.ScanIssue]{}, fmt.Errorf("count scan issues: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT "+scanIssueColumns+" FROM scan_issues %s ORDER BY detected_at DESC LIMIT $%d OFFSET $%d",
		whereClause, argIdx, argIdx+1,
	)
	args = append(args, page.Limit(), page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*scanissue.ScanIssue]{}, fmt.Errorf("list scan issues: %w", err)
	}
	defer rows.Close()

	issues := make([]*scanissue.ScanIssue, 0)
	for rows.Next() {
		issue, err := r.scanIssue(rows)
		if err != nil {
			return pagination.Result[*scanissue.ScanIssue]{}, err
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*scanissue.ScanIssue]{}, fmt.Errorf("iterate scan issues: %w", err)
	}

	return pagination.NewResult(issues, total, page), nil
}

// Update persists issue mutations.
func (r *ScanIssueRepository) Update(ctx context.Context, issue *scanissue.ScanIssue) error {
	query := `
		UPDATE scan_issues SET
			type = $1, title = $2, description = $3,
			status = $4, assignee = $5, resolution_notes = $6,
			resolved_at = $7, updated_at = $8
		WHERE id = $9
	`

	result, err := r.db.execRetry(ctx, query,
		nullString(issue.Type),
		issue.Title,
		nullString(issue.Description),
		string(issue.Status),
		nullString(issue.Assignee),
		nullString(issue.ResolutionNotes),
		nullTime(issue.ResolvedAt),
		time.Now(),
		issue.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update scan issue: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return shared.NewDomainError("NOT_FOUND", "issue not found", shared.ErrNotFound)
	}
	return nil
}

// CountBySeverity counts issues per severity within the filter window.
func (r *ScanIssueRepository) CountBySeverity(ctx context.Context, filter scanissue.Filter) (map[scanissue.Severity]int64, error) {
	whereClause, args, _ := issueWhere(filter)

	query := "SELECT severity, COUNT(*) FROM scan_issues " + whereClause + " GROUP BY severity"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count issues by severity: %w", err)
	}
	defer rows.Close()

	counts := make(map[scanissue.Severity]int64)
	for rows.Next() {
		var severity string
		var count int64
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("scan severity count: %w", err)
		}
		counts[scanissue.Severity(severity)] = count
	}
	return counts, rows.Err()
}

func issueWhere(filter scanissue.Filter) (string, []any, int) {
	var conditions []string
	var args []any
	argIdx := 1

	if filter.RunID != nil {
		conditions = append(conditions, fmt.Sprintf("run_id = $%d", argIdx))
		args = append(args, filter.RunID.String())
		argIdx++
	}
	if filter.ConfigurationID != nil {
		conditions = append(conditions, fmt.Sprintf("configuration_id = $%d", argIdx))
		args = append(args, filter.ConfigurationID.String())
		argIdx++
	}
	if filter.Severity != nil {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", argIdx))
		args = append(args, string(*filter.Severity))
		argIdx++
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, filter.Type)
		argIdx++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*filter.Status))
		argIdx++
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("detected_at >= $%d", argIdx))
		args = append(args, *filter.From)
		argIdx++
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("detected_at <= $%d", argIdx))
		args = append(args, *filter.To)
		argIdx++
	}
	if filter.DataSourceID != nil {
		conditions = append(conditions,
			fmt.Sprintf("configuration_id IN (SELECT id FROM scan_configurations WHERE data_source_id = $%d)", argIdx))
		args = append(args, *filter.DataSourceID)
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}
	return whereClause, args, argIdx
}

func (r *ScanIssueRepository) scanIssue(row scanner) (*scanissue.ScanIssue, error) {
	var (
		issue       scanissue.ScanIssue
		idStr       string
		runIDStr    string
		cfgIDStr    string
		severity    string
		issueType   sql.NullString
		description sql.NullString
		status      string
		assignee    sql.NullString
		notes       sql.NullString
		resolvedAt  sql.NullTime
	)

	err := row.Scan(
		&idStr, &runIDStr, &cfgIDStr,
		&severity, &issueType, &issue.Title, &description,
		&status, &assignee, &notes,
		&issue.DetectedAt, &resolvedAt, &issue.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewDomainError("NOT_FOUND", "issue not found", shared.ErrNotFound)
		}
		return nil, fmt.Errorf("scan issue row: %w", err)
	}

	issue.ID, err = shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse issue id: %w", err)
	}
	issue.RunID, err = shared.IDFromString(runIDStr)
	if err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	issue.ConfigurationID, err = shared.IDFromString(cfgIDStr)
	if err != nil {
		return nil, fmt.Errorf("parse configuration id: %w", err)
	}
	issue.Severity = scanissue.Severity(severity)
	issue.Type = nullStringValue(issueType)
	issue.Description = nullStringValue(description)
	issue.Status = scanissue.Status(status)
	issue.Assignee = nullStringValue(assignee)
	issue.ResolutionNotes = nullStringValue(notes)
	issue.ResolvedAt = nullTimeValue(resolvedAt)
	return &issue, nil
}
