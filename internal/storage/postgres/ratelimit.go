package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/types"
)

// CheckAndIncrementFixedWindow implements the fixed-window rate limiter
// adapter described in SPEC_FULL.md §4.11: each (identifier, action)
// pair owns a single row per window, keyed by the window's start time.
// The window boundary is floor(now/window)*window, so every caller in
// the same window lands on the same row regardless of when within the
// window it arrives.
//
// The row is created at count=0 on first use (ON CONFLICT DO NOTHING),
// then the increment is conditioned on count < limit so a denied
// request never mutates the counter — it just rereads the current
// count to report how long until the window resets.
func (s *Store) CheckAndIncrementFixedWindow(ctx context.Context, identifier string, action types.RateLimitAction, window time.Duration, limit int64, now time.Time) (bool, int64, time.Time, error) {
	windowStart := now.Truncate(window)
	windowEnd := windowStart.Add(window)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO rate_limits (identifier, action, count, window_start, window_end)
		VALUES ($1, $2, 0, $3, $4)
		ON CONFLICT (identifier, action, window_start) DO NOTHING
	`, identifier, string(action), windowStart, windowEnd)
	if err != nil {
		return false, 0, time.Time{}, apperrors.Wrap(apperrors.KindDatabaseErr, "ensure rate limit bucket", err)
	}

	var count int64
	err = s.pool.QueryRow(ctx, `
		UPDATE rate_limits SET count = count + 1
		WHERE identifier = $1 AND action = $2 AND window_start = $3 AND count < $4
		RETURNING count
	`, identifier, string(action), windowStart, limit).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		err = s.pool.QueryRow(ctx, `
			SELECT count FROM rate_limits WHERE identifier = $1 AND action = $2 AND window_start = $3
		`, identifier, string(action), windowStart).Scan(&count)
		if err != nil {
			return false, 0, time.Time{}, apperrors.Wrap(apperrors.KindDatabaseErr, "read rate limit bucket", err)
		}
		return false, 0, windowEnd, nil
	}
	if err != nil {
		return false, 0, time.Time{}, apperrors.Wrap(apperrors.KindDatabaseErr, "increment rate limit bucket", err)
	}
	return true, limit - count, windowEnd, nil
}

// CleanupRateLimitBuckets deletes expired buckets so the table doesn't
// grow unbounded; callers run this periodically (SPEC_FULL.md §4.11).
func (s *Store) CleanupRateLimitBuckets(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rate_limits WHERE window_end < $1`, olderThan)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindDatabaseErr, "cleanup rate limit buckets", err)
	}
	return tag.RowsAffected(), nil
}
