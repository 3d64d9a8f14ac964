// Package pathresolver maps an incoming request path to a stream, a
// (stream, record) pair, or a write target, following the read/write
// resolution rules of SPEC_FULL.md §4.1.
package pathresolver

import (
	"context"
	"strings"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/storage"
	"github.com/webpods-go/webpods/internal/types"
	"github.com/webpods-go/webpods/internal/validate"
)

// DefaultRecordName is the record name used when a write addresses a
// single-segment path. Read rule 2 treats a single segment as always
// naming a stream, so a write to that same single segment must target
// a record *inside* a stream of that name rather than a record named
// by the segment directly underneath the pod root — otherwise the same
// URL would name two different entities depending on the verb. The
// single-segment URL itself then reads the stream, so the record is read
// back by index or listing (?i=, ?limit=), or by name at
// "<segment>/_root".
const DefaultRecordName = "_root"

// Result is the outcome of resolving a path: exactly one of Stream or
// (Stream, RecordName) is meaningful depending on IsRecord.
type Result struct {
	Stream     *types.Stream
	RecordName string
	IsRecord   bool
}

// Resolver resolves request paths against a storage.Store.
type Resolver struct {
	store storage.Store
}

func New(store storage.Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveRead implements SPEC_FULL.md §4.1's read resolution rules.
// hasIndexQuery is true when the request carries ?i= or ?recursive=.
func (r *Resolver) ResolveRead(ctx context.Context, podName, path string, hasIndexQuery bool) (Result, error) {
	segments := validate.SplitPath(path)
	path = strings.Join(segments, "/")

	// Rule 1: an index/list query always addresses the entire path as a
	// stream.
	if hasIndexQuery {
		stream, err := r.store.GetStreamByPath(ctx, podName, path)
		if err != nil {
			return Result{}, apperrors.New(apperrors.KindStreamNotFound, "not a stream: "+path)
		}
		return Result{Stream: stream}, nil
	}

	// Rule 2: a single segment is always a stream.
	if len(segments) <= 1 {
		stream, err := r.store.GetStreamByPath(ctx, podName, path)
		if err != nil {
			return Result{}, err
		}
		return Result{Stream: stream}, nil
	}

	// Rule 3: try the full path as a stream first.
	if stream, err := r.store.GetStreamByPath(ctx, podName, path); err == nil {
		return Result{Stream: stream}, nil
	}

	// Rule 4: split off the last segment as a record name. If the
	// prefix isn't a stream either, the path names neither a stream
	// nor a resolvable record.
	recordName := segments[len(segments)-1]
	prefix := strings.Join(segments[:len(segments)-1], "/")
	stream, err := r.store.GetStreamByPath(ctx, podName, prefix)
	if err != nil {
		return Result{}, apperrors.New(apperrors.KindRecordNotFound, "not found: "+path)
	}
	return Result{Stream: stream, RecordName: recordName, IsRecord: true}, nil
}

// ResolveWrite implements SPEC_FULL.md §4.1's write resolution: for a
// path of two or more segments the last segment is the record name and
// the prefix is the stream; a single segment names the stream and the
// record is DefaultRecordName. Missing prefix streams are the caller's
// responsibility to auto-create (httpapi's ensureStreamPath), subject
// to the nearest-existing-ancestor write check.
func (r *Resolver) ResolveWrite(podName, path string) (streamPath, recordName string, err error) {
	segments := validate.SplitPath(path)
	if len(segments) == 0 {
		return "", "", apperrors.New(apperrors.KindInvalidInput, "path must include a record name")
	}
	if len(segments) == 1 {
		return segments[0], DefaultRecordName, nil
	}
	recordName = segments[len(segments)-1]
	streamPath = strings.Join(segments[:len(segments)-1], "/")
	return streamPath, recordName, nil
}

// NearestExistingAncestor walks streamPath's prefix chain from the
// leaf upward and returns the nearest stream that already exists,
// together with the list of segments (outermost first) that still need
// to be created on top of it. Returns (nil, allSegments) if no prefix
// exists yet (write targets a new root stream).
func (r *Resolver) NearestExistingAncestor(ctx context.Context, podName, streamPath string) (*types.Stream, []string, error) {
	if streamPath == "" {
		return nil, nil, nil
	}
	segments := validate.SplitPath(streamPath)

	for i := len(segments); i > 0; i-- {
		candidate := strings.Join(segments[:i], "/")
		stream, err := r.store.GetStreamByPath(ctx, podName, candidate)
		if err == nil {
			return stream, segments[i:], nil
		}
		if apperrors.KindOf(err) != apperrors.KindStreamNotFound {
			return nil, nil, err
		}
	}
	return nil, segments, nil
}
