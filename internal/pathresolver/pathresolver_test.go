package pathresolver

import (
	"context"
	"testing"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/storage"
	"github.com/webpods-go/webpods/internal/types"
)

type stubStore struct {
	storage.Store
	streams map[string]*types.Stream
}

func (s *stubStore) GetStreamByPath(_ context.Context, _ string, path string) (*types.Stream, error) {
	st, ok := s.streams[path]
	if !ok {
		return nil, apperrors.New(apperrors.KindStreamNotFound, "not found")
	}
	return st, nil
}

func TestResolveReadSingleSegmentIsStream(t *testing.T) {
	store := &stubStore{streams: map[string]*types.Stream{"blog": {Path: "blog"}}}
	r := New(store)

	res, err := r.ResolveRead(context.Background(), "pod1", "blog", false)
	if err != nil {
		t.Fatalf("ResolveRead: %v", err)
	}
	if res.IsRecord || res.Stream == nil {
		t.Fatal("expected single-segment path to resolve as a stream")
	}
}

func TestResolveReadFullPathAsStreamWins(t *testing.T) {
	store := &stubStore{streams: map[string]*types.Stream{"blog/posts": {Path: "blog/posts"}}}
	r := New(store)

	res, err := r.ResolveRead(context.Background(), "pod1", "blog/posts", false)
	if err != nil {
		t.Fatalf("ResolveRead: %v", err)
	}
	if res.IsRecord {
		t.Fatal("expected blog/posts to resolve as a stream, not a record")
	}
}

func TestResolveReadSplitsRecordFromPrefix(t *testing.T) {
	store := &stubStore{streams: map[string]*types.Stream{"blog": {Path: "blog"}}}
	r := New(store)

	res, err := r.ResolveRead(context.Background(), "pod1", "blog/first-post", false)
	if err != nil {
		t.Fatalf("ResolveRead: %v", err)
	}
	if !res.IsRecord || res.RecordName != "first-post" {
		t.Fatalf("expected record first-post under prefix stream, got %+v", res)
	}
}

func TestResolveReadIndexQueryForcesWholePathAsStream(t *testing.T) {
	store := &stubStore{streams: map[string]*types.Stream{"blog/posts": {Path: "blog/posts"}}}
	r := New(store)

	if _, err := r.ResolveRead(context.Background(), "pod1", "blog/posts", true); err != nil {
		t.Fatalf("ResolveRead: %v", err)
	}

	store2 := &stubStore{streams: map[string]*types.Stream{}}
	r2 := New(store2)
	if _, err := r2.ResolveRead(context.Background(), "pod1", "blog/missing", true); err == nil {
		t.Fatal("expected STREAM_NOT_FOUND when index query targets a non-stream path")
	}
}

func TestResolveWriteAlwaysSplitsLastSegment(t *testing.T) {
	r := New(&stubStore{})
	streamPath, recordName, err := r.ResolveWrite("pod1", "blog/posts/first")
	if err != nil {
		t.Fatalf("ResolveWrite: %v", err)
	}
	if streamPath != "blog/posts" || recordName != "first" {
		t.Fatalf("got (%q, %q), want (blog/posts, first)", streamPath, recordName)
	}
}

func TestResolveWriteSingleSegmentTargetsDefaultRecord(t *testing.T) {
	r := New(&stubStore{})
	streamPath, recordName, err := r.ResolveWrite("pod1", "blog")
	if err != nil {
		t.Fatalf("ResolveWrite: %v", err)
	}
	if streamPath != "blog" || recordName != DefaultRecordName {
		t.Fatalf("got (%q, %q), want (blog, %q)", streamPath, recordName, DefaultRecordName)
	}
}

func TestNearestExistingAncestor(t *testing.T) {
	store := &stubStore{streams: map[string]*types.Stream{"blog": {Path: "blog"}}}
	r := New(store)

	ancestor, missing, err := r.NearestExistingAncestor(context.Background(), "pod1", "blog/2024/posts")
	if err != nil {
		t.Fatalf("NearestExistingAncestor: %v", err)
	}
	if ancestor == nil || ancestor.Path != "blog" {
		t.Fatalf("expected nearest ancestor blog, got %+v", ancestor)
	}
	if len(missing) != 2 || missing[0] != "2024" || missing[1] != "posts" {
		t.Fatalf("missing = %v, want [2024 posts]", missing)
	}
}
