package records

import (
	"context"

	"github.com/webpods-go/webpods/internal/storage"
)

// ListOptions mirrors storage.ListOptions with an unresolved After
// field: negative After values mean "the last |after|" per
// SPEC_FULL.md §4.4 and must be resolved against the stream's current
// count before querying.
type ListOptions struct {
	Limit  int
	After  int64
	Unique bool
}

const defaultListLimit = 100

// List returns a single stream's records page (SPEC_FULL.md §4.4
// "list"/"unique").
func (s *Service) List(ctx context.Context, streamID int64, opts ListOptions) (*storage.ListResult, error) {
	resolved, err := s.resolveAfter(ctx, streamID, opts)
	if err != nil {
		return nil, err
	}
	return s.store.ListRecords(ctx, streamID, resolved)
}

// ListRecursive returns the merged, created_at-ordered page across
// every stream ID in streamIDs — the caller has already filtered this
// set down to streams the requester may read (SPEC_FULL.md §4.4
// "recursive": "streams the caller cannot read are silently omitted").
func (s *Service) ListRecursive(ctx context.Context, streamIDs []int64, opts ListOptions) (*storage.ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.store.ListRecordsAcrossStreams(ctx, streamIDs, storage.ListOptions{
		Limit:  limit,
		After:  opts.After,
		Unique: opts.Unique,
	})
}

func (s *Service) resolveAfter(ctx context.Context, streamID int64, opts ListOptions) (storage.ListOptions, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	after := opts.After
	if after < 0 {
		count, err := s.store.RecordCount(ctx, streamID)
		if err != nil {
			return storage.ListOptions{}, err
		}
		after = count + after - 1
	}

	return storage.ListOptions{Limit: limit, After: after, Unique: opts.Unique}, nil
}
