// Package routing implements the link/routing rewrite of
// SPEC_FULL.md §4.8: a longest-prefix URL rewrite driven by the
// latest "routes" record in /.config/routing.
package routing

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/cache"
	"github.com/webpods-go/webpods/internal/storage"
)

const (
	routingStreamPath = ".config/routing"
	routingRecordName = "routes"
	cacheTTL          = 30 * time.Second
)

// Resolver rewrites request paths using a pod's routing table.
type Resolver struct {
	store storage.Store
	cache cache.Cache
}

func New(store storage.Store, c cache.Cache) *Resolver {
	return &Resolver{store: store, cache: c}
}

// Rewrite applies the longest matching prefix rule from podName's
// routing table to path, preserving the unmatched suffix. Absence of a
// routing stream, an unparseable record, or no matching prefix all
// leave path unchanged (SPEC_FULL.md §4.8).
func (r *Resolver) Rewrite(ctx context.Context, podName, path string) (string, error) {
	routes, err := r.loadRoutes(ctx, podName)
	if err != nil {
		// Absence or parse failure leaves the path unchanged.
		return path, nil
	}
	if len(routes) == 0 {
		return path, nil
	}

	longestKey := ""
	for source := range routes {
		if strings.HasPrefix(path, source) && len(source) > len(longestKey) {
			longestKey = source
		}
	}
	if longestKey == "" {
		return path, nil
	}

	target := routes[longestKey]
	suffix := path[len(longestKey):]
	return target + suffix, nil
}

// loadRoutes fetches and parses the routing table, consulting the
// cache first (the streams pool, under "routes:<pod>"; invalidated by
// InvalidateRoutes on writes to /.config/routing).
func (r *Resolver) loadRoutes(ctx context.Context, podName string) (map[string]string, error) {
	cacheKey := "routes:" + podName
	if r.cache != nil {
		if raw, ok, _ := r.cache.Get(ctx, cache.PoolStreams, cacheKey); ok {
			var routes map[string]string
			if json.Unmarshal(raw, &routes) == nil {
				return routes, nil
			}
		}
	}

	stream, err := r.store.GetStreamByPath(ctx, podName, routingStreamPath)
	if err != nil {
		return nil, err
	}
	rec, err := r.store.GetLatestRecordByName(ctx, stream.ID, routingRecordName)
	if err != nil {
		return nil, err
	}

	var routes map[string]string
	if err := json.Unmarshal(rec.Content, &routes); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidationErr, "parse routing table", err)
	}

	if r.cache != nil {
		if raw, err := json.Marshal(routes); err == nil {
			_ = r.cache.Set(ctx, cache.PoolStreams, cacheKey, raw, cacheTTL)
		}
	}
	return routes, nil
}

// InvalidateRoutes evicts the cached routing table for podName; called
// whenever /.config/routing is written to.
func (r *Resolver) InvalidateRoutes(ctx context.Context, podName string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Delete(ctx, cache.PoolStreams, "routes:"+podName)
}
