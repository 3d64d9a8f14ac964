// Package ratelimit implements the (identifier, action) rate limiter
// described in SPEC_FULL.md §4.11, with a sliding-window in-process
// adapter and a fixed-window adapter delegating to storage.Store.
package ratelimit

import (
	"context"
	"time"

	"github.com/webpods-go/webpods/internal/types"
)

// Result is the outcome of a single checkAndIncrement call.
type Result struct {
	Allowed   bool
	Remaining int64
	Limit     int64
	ResetAt   time.Time
}

// Limiter is the shared contract both adapters satisfy.
type Limiter interface {
	CheckAndIncrement(ctx context.Context, identifier string, action types.RateLimitAction) (Result, error)
}

// Limits carries the per-action ceiling and shared window, mirroring
// the configured "reads/writes/podCreate/streamCreate per window"
// structure from SPEC_FULL.md §4.11.
type Limits struct {
	Window        time.Duration
	Reads         int64
	Writes        int64
	PodCreate     int64
	StreamCreate  int64
}

func (l Limits) limitFor(action types.RateLimitAction) int64 {
	switch action {
	case types.ActionRead:
		return l.Reads
	case types.ActionWrite:
		return l.Writes
	case types.ActionPodCreate:
		return l.PodCreate
	case types.ActionStreamCreate:
		return l.StreamCreate
	default:
		return l.Writes
	}
}
