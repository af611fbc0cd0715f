package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/tendant/qc-inspect/pkg/domain"
)

// RateLimitsRepository stores rate limit windows in Postgres. It satisfies
// ratelimit.Store.
type RateLimitsRepository struct {
	db *sql.DB
}

func NewRateLimitsRepository(db *sql.DB) *RateLimitsRepository {
	return &RateLimitsRepository{db: db}
}

func (r *RateLimitsRepository) Get(ctx context.Context, identifier string, action domain.RateLimitAction) (*domain.RateLimitWindow, error) {
	query := `
		SELECT identifier, action, window_start, attempt_count, last_attempt_at
		FROM rate_limits
		WHERE identifier = $1 AND action = $2
	`
	w := &domain.RateLimitWindow{}
	err := r.db.QueryRowContext(ctx, query, identifier, action).Scan(
		&w.Identifier, &w.Action, &w.WindowStart, &w.AttemptCount, &w.LastAttemptAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRateLimitWindowNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Increment counts an attempt in one statement. The row lock taken by the
// upsert serializes concurrent callers, and a window that started at or
// before now-window is restarted at now with a count of one.
func (r *RateLimitsRepository) Increment(ctx context.Context, identifier string, action domain.RateLimitAction, now time.Time, window time.Duration) (*domain.RateLimitWindow, error) {
	query := `
		INSERT INTO rate_limits (identifier, action, window_start, attempt_count, last_attempt_at)
		VALUES ($1, $2, $3, 1, $3)
		ON CONFLICT (identifier, action) DO UPDATE
		SET attempt_count = CASE
		        WHEN rate_limits.window_start <= $4 THEN 1
		        ELSE rate_limits.attempt_count + 1
		    END,
		    window_start = CASE
		        WHEN rate_limits.window_start <= $4 THEN EXCLUDED.window_start
		        ELSE rate_limits.window_start
		    END,
		    last_attempt_at = EXCLUDED.last_attempt_at
		RETURNING identifier, action, window_start, attempt_count, last_attempt_at
	`
	w := &domain.RateLimitWindow{}
	err := r.db.QueryRowContext(ctx, query, identifier, action, now, now.Add(-window)).Scan(
		&w.Identifier, &w.Action, &w.WindowStart, &w.AttemptCount, &w.LastAttemptAt,
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *RateLimitsRepository) Delete(ctx context.Context, identifier string, action domain.RateLimitAction) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE identifier = $1 AND action = $2`, identifier, action)
	return err
}

// DeleteExpired removes windows that started before the cutoff.
func (r *RateLimitsRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE window_start < $1`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
