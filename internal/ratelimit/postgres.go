package ratelimit

import (
	"context"
	"time"

	"github.com/webpods-go/webpods/internal/storage"
	"github.com/webpods-go/webpods/internal/types"
)

// PostgresLimiter is the fixed-window adapter, delegating the actual
// bucket bookkeeping to storage.Store.CheckAndIncrementFixedWindow so
// the limit holds across every webpodsd instance sharing the database
// (SPEC_FULL.md §4.11, §5 "Shared-resource policy").
type PostgresLimiter struct {
	store  storage.Store
	limits Limits
}

func NewPostgresLimiter(store storage.Store, limits Limits) *PostgresLimiter {
	return &PostgresLimiter{store: store, limits: limits}
}

func (l *PostgresLimiter) CheckAndIncrement(ctx context.Context, identifier string, action types.RateLimitAction) (Result, error) {
	limit := l.limits.limitFor(action)
	allowed, remaining, resetAt, err := l.store.CheckAndIncrementFixedWindow(ctx, identifier, action, l.limits.Window, limit, time.Now())
	if err != nil {
		return Result{}, err
	}
	return Result{Allowed: allowed, Remaining: remaining, Limit: limit, ResetAt: resetAt}, nil
}

// Cleanup removes expired buckets; callers run this on a timer.
func (l *PostgresLimiter) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	return l.store.CleanupRateLimitBuckets(ctx, olderThan)
}

var _ Limiter = (*PostgresLimiter)(nil)
