package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
)

const maxWriteRetries = 3

// execRetry runs a write statement, retrying transient connection
// failures with exponential backoff. Exhausted retries surface as the
// store being unavailable so handlers can map them to 503.
func (db *DB) execRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	err := backoff.Retry(func() error {
		var err error
		result, err = db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, maxWriteRetries), ctx))
	if err != nil {
		if isRetryable(err) {
			return nil, shared.NewDomainError("UNAVAILABLE", "storage unavailable", shared.ErrUnavailable)
		}
		return nil, err
	}
	return result, nil
}

// isRetryable reports whether err looks like a transient connection
// problem rather than a statement error.
func isRetryable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// class 08: connection exceptions; 57P01: admin shutdown
		return pqErr.Code.Class() == "08" || pqErr.Code == "57P01"
	}
	return false
}
