package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/seiforesti/data-wave-sub013/internal/app/stats"
)

// StatsRepository implements stats.Reader using PostgreSQL.
type StatsRepository struct {
	db *DB
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Ensure StatsRepository implements stats.Reader
var _ stats.Reader = (*StatsRepository)(nil)

// AggregateRuns rolls up runs created inside the window in one query,
// optionally restricted to a single data source.
func (r *StatsRepository) AggregateRuns(ctx context.Context, w stats.Window) (*stats.RunAggregates, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE r.status = 'completed'),
			COUNT(*) FILTER (WHERE r.status = 'failed'),
			COUNT(*) FILTER (WHERE r.status = 'cancelled'),
			COUNT(*) FILTER (WHERE r.status = 'running'),
			COUNT(*) FILTER (WHERE r.status = 'pending'),
			COALESCE(AVG(r.duration_ms) FILTER (WHERE r.status = 'completed'), 0),
			COALESCE(SUM(r.entities_scanned), 0),
			COALESCE(SUM(r.issues_found), 0),
			COUNT(DISTINCT c.data_source_id)
		FROM scan_runs r
		JOIN scan_configurations c ON c.id = r.configuration_id
		WHERE r.created_at >= $1 AND r.created_at <= $2
	`
	args := []any{w.From, w.To}
	if w.DataSourceID != nil {
		query += " AND c.data_source_id = $3"
		args = append(args, *w.DataSourceID)
	}

	var agg stats.RunAggregates
	var avgDurationMS sql.NullFloat64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&agg.Total,
		&agg.Completed,
		&agg.Failed,
		&agg.Cancelled,
		&agg.Running,
		&agg.Pending,
		&avgDurationMS,
		&agg.TotalEntitiesScanned,
		&agg.TotalIssuesFound,
		&agg.DistinctDataSources,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate runs: %w", err)
	}

	agg.AvgDuration = time.Duration(avgDurationMS.Float64) * time.Millisecond
	return &agg, nil
}
