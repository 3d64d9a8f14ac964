// Package streams implements the stream hierarchy operations of
// SPEC_FULL.md §4.2: create, lookup, child/descendant listing, and
// delete with system-stream protection.
package streams

import (
	"context"
	"strings"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/storage"
	"github.com/webpods-go/webpods/internal/types"
	"github.com/webpods-go/webpods/internal/validate"
)

// Service implements the stream hierarchy against a storage.Store.
type Service struct {
	store storage.Store
}

func New(store storage.Store) *Service {
	return &Service{store: store}
}

// Create adds a stream named name under parentID in podName. It fails
// with NAME_CONFLICT if a sibling stream or sibling record already
// holds that name under the parent (SPEC_FULL.md §4.2).
func (s *Service) Create(ctx context.Context, podName string, parentID *int64, name, access, userID string, metadata map[string]any) (*types.Stream, error) {
	if err := validate.StreamSegment(name); err != nil {
		return nil, err
	}

	path := name
	if parentID != nil {
		parent, err := s.store.GetStream(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent.PodName != podName {
			return nil, apperrors.New(apperrors.KindInvalidInput, "parent stream belongs to a different pod")
		}
		path = parent.Path + "/" + name
	}

	// The sibling-stream and sibling-record checks here are advisory:
	// the authoritative guard against two concurrent creators racing on
	// the same stream path is the (pod_name, path) unique index, which
	// CreateStream below surfaces as NAME_CONFLICT.
	if parentID != nil {
		hasStreamSibling, err := s.store.HasSiblingStream(ctx, *parentID, name)
		if err != nil {
			return nil, err
		}
		if hasStreamSibling {
			return nil, apperrors.New(apperrors.KindNameConflict, "sibling stream already named: "+name)
		}
		hasRecordSibling, err := s.store.StreamHasSiblingRecordByID(ctx, *parentID, name)
		if err != nil {
			return nil, err
		}
		if hasRecordSibling {
			return nil, apperrors.New(apperrors.KindNameConflict, "a record already named: "+name)
		}
	}

	created, err := s.store.CreateStream(ctx, podName, parentID, name, path, access, userID, metadata)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetByPath returns the stream at path in podName.
func (s *Service) GetByPath(ctx context.Context, podName, path string) (*types.Stream, error) {
	return s.store.GetStreamByPath(ctx, podName, path)
}

// ListChildren returns the direct children of parentID (nil for root
// streams) within podName, sorted by name.
func (s *Service) ListChildren(ctx context.Context, podName string, parentID *int64) ([]*types.Stream, error) {
	return s.store.ListChildStreams(ctx, parentID, podName)
}

// ListDescendants returns pathPrefix's stream together with every
// stream nested under it, used by the recursive record-list query
// (SPEC_FULL.md §4.4).
func (s *Service) ListDescendants(ctx context.Context, podName, pathPrefix string) ([]*types.Stream, error) {
	return s.store.ListDescendantStreams(ctx, podName, pathPrefix)
}

// Update applies a partial mutation to streamID's access_permission
// and/or metadata — the only sanctioned way to change either, per the
// Open-Questions resolution in SPEC_FULL.md §9(i) (never a side effect
// of a record write).
func (s *Service) Update(ctx context.Context, streamID int64, access *string, metadata map[string]any) (*types.Stream, error) {
	if access != nil {
		if *access != "public" && *access != "private" {
			if !strings.HasPrefix(*access, "/") {
				return nil, apperrors.New(apperrors.KindInvalidInput, "access_permission must be \"public\", \"private\", or a permission-stream path")
			}
		}
	}
	return s.store.UpdateStream(ctx, streamID, access, metadata)
}

// ListAll returns every stream in podName, used by the administrative
// stream listing (SPEC_FULL.md §6.6), before the caller filters it
// down by read permission.
func (s *Service) ListAll(ctx context.Context, podName string) ([]*types.Stream, error) {
	return s.store.ListAllStreams(ctx, podName)
}

// SetHasSchema flips streamID's has_schema flag after a schema record
// is written or cleared (SPEC_FULL.md §4.9, §6.6).
func (s *Service) SetHasSchema(ctx context.Context, streamID int64, hasSchema bool) error {
	return s.store.SetHasSchema(ctx, streamID, hasSchema)
}

// Delete removes streamID. System streams (under .config) cannot be
// deleted (SPEC_FULL.md §4.2, §3).
func (s *Service) Delete(ctx context.Context, streamID int64) error {
	stream, err := s.store.GetStream(ctx, streamID)
	if err != nil {
		return err
	}
	if stream.IsSystem() {
		return apperrors.New(apperrors.KindForbidden, "system streams cannot be deleted: "+stream.Path)
	}
	return s.store.DeleteStream(ctx, streamID)
}

// SplitParentPath returns the parent path and leaf segment of path, or
// ("", path, false) if path is a single segment with no parent.
func SplitParentPath(path string) (parentPath, leaf string, hasParent bool) {
	segments := validate.SplitPath(path)
	if len(segments) <= 1 {
		return "", path, false
	}
	leaf = segments[len(segments)-1]
	parentPath = strings.Join(segments[:len(segments)-1], "/")
	return parentPath, leaf, true
}
