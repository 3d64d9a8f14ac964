package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/webpods-go/webpods/internal/types"
)

// MemoryLimiter is the sliding-window adapter from SPEC_FULL.md §4.11:
// each (identifier, action) pair owns a list of timestamps, trimmed to
// now-window on every call. A denial never appends, so it never counts
// against the window.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	limits  Limits
}

func NewMemoryLimiter(limits Limits) *MemoryLimiter {
	return &MemoryLimiter{buckets: make(map[string][]time.Time), limits: limits}
}

func bucketKey(identifier string, action types.RateLimitAction) string {
	return identifier + "\x00" + string(action)
}

func (l *MemoryLimiter) CheckAndIncrement(_ context.Context, identifier string, action types.RateLimitAction) (Result, error) {
	limit := l.limits.limitFor(action)
	now := time.Now()
	cutoff := now.Add(-l.limits.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	key := bucketKey(identifier, action)
	timestamps := trim(l.buckets[key], cutoff)

	resetAt := now.Add(l.limits.Window)
	if len(timestamps) > 0 {
		resetAt = timestamps[0].Add(l.limits.Window)
	}

	if int64(len(timestamps)) >= limit {
		l.buckets[key] = timestamps
		return Result{Allowed: false, Remaining: 0, Limit: limit, ResetAt: resetAt}, nil
	}

	timestamps = append(timestamps, now)
	l.buckets[key] = timestamps
	return Result{
		Allowed:   true,
		Remaining: limit - int64(len(timestamps)),
		Limit:     limit,
		ResetAt:   resetAt,
	}, nil
}

func trim(timestamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(timestamps) && timestamps[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return timestamps
	}
	return append([]time.Time(nil), timestamps[i:]...)
}

// Cleanup removes buckets whose most recent timestamp is older than
// olderThan, bounding memory growth for identifiers that stop sending
// traffic (SPEC_FULL.md §4.11's periodic cleanup).
func (l *MemoryLimiter) Cleanup(olderThan time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, timestamps := range l.buckets {
		if len(timestamps) == 0 || timestamps[len(timestamps)-1].Before(olderThan) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

var _ Limiter = (*MemoryLimiter)(nil)
