package records

import (
	"context"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/types"
)

// GetByName returns the latest record named name in streamID, unless a
// soft-delete tombstone with a greater index exists for it — in which
// case the name is treated as deleted (SPEC_FULL.md §4.4 "single
// read", §4.5 "subsequent reads by name skip...").
func (s *Service) GetByName(ctx context.Context, streamID int64, name string) (*types.Record, error) {
	rec, err := s.store.GetLatestRecordByName(ctx, streamID, name)
	if err != nil {
		return nil, err
	}

	tombstone, err := s.store.FindLatestTombstone(ctx, streamID, name)
	if err != nil {
		return nil, err
	}
	if tombstone != nil && tombstone.Index > rec.Index {
		return nil, apperrors.New(apperrors.KindRecordNotFound, "record deleted: "+name)
	}
	return rec, nil
}

// ResolveIndex turns a possibly-negative index (as in ?i=k) into an
// absolute index by consulting the stream's current record count
// (SPEC_FULL.md §4.4 "index read": k<0 means count+k, so -1 is last).
func (s *Service) ResolveIndex(ctx context.Context, streamID int64, k int64) (int64, error) {
	if k >= 0 {
		return k, nil
	}
	count, err := s.store.RecordCount(ctx, streamID)
	if err != nil {
		return 0, err
	}
	return count + k, nil
}

// GetByIndex returns the record at the given (already-resolved,
// non-negative) index.
func (s *Service) GetByIndex(ctx context.Context, streamID int64, index int64) (*types.Record, error) {
	if index < 0 {
		return nil, apperrors.New(apperrors.KindRecordNotFound, "index out of range")
	}
	return s.store.GetRecordByIndex(ctx, streamID, index)
}

// ResolveRange turns possibly-negative range bounds a:b into absolute
// bounds following SPEC_FULL.md §4.4 "range" (they are not clamped to
// the record count): negative indices
// resolve against count first; if the resolved range is empty
// (b <= a), the caller gets (0, 0) and must treat that as "no rows".
func (s *Service) ResolveRange(ctx context.Context, streamID int64, a, b int64) (int64, int64, error) {
	count, err := s.store.RecordCount(ctx, streamID)
	if err != nil {
		return 0, 0, err
	}
	if a < 0 {
		a = count + a
	}
	if b < 0 {
		b = count + b
	}
	if b <= a {
		return 0, 0, nil
	}
	return a, b, nil
}

// GetRange returns records with from <= index < to.
func (s *Service) GetRange(ctx context.Context, streamID int64, from, to int64) ([]*types.Record, error) {
	if to <= from {
		return nil, nil
	}
	return s.store.GetRecordRange(ctx, streamID, from, to)
}
