package routing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/storage"
	"github.com/webpods-go/webpods/internal/types"
)

type stubStore struct {
	storage.Store
	stream *types.Stream
	record *types.Record
}

func (s *stubStore) GetStreamByPath(context.Context, string, string) (*types.Stream, error) {
	if s.stream == nil {
		return nil, apperrors.New(apperrors.KindStreamNotFound, "not found")
	}
	return s.stream, nil
}

func (s *stubStore) GetLatestRecordByName(context.Context, int64, string) (*types.Record, error) {
	if s.record == nil {
		return nil, apperrors.New(apperrors.KindRecordNotFound, "not found")
	}
	return s.record, nil
}

func TestRewritePicksLongestPrefix(t *testing.T) {
	routes := map[string]string{
		"/old":        "/new",
		"/old/nested": "/special",
	}
	raw, _ := json.Marshal(routes)
	store := &stubStore{stream: &types.Stream{ID: 1}, record: &types.Record{Content: raw}}

	r := New(store, nil)
	got, err := r.Rewrite(context.Background(), "pod1", "/old/nested/page")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if got != "/special/page" {
		t.Fatalf("Rewrite = %q, want /special/page", got)
	}
}

func TestRewriteLeavesUnchangedWhenNoRoutingStream(t *testing.T) {
	r := New(&stubStore{}, nil)
	got, err := r.Rewrite(context.Background(), "pod1", "/whatever")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if got != "/whatever" {
		t.Fatalf("Rewrite = %q, want unchanged", got)
	}
}

func TestRewriteLeavesUnchangedWhenNoMatch(t *testing.T) {
	raw, _ := json.Marshal(map[string]string{"/foo": "/bar"})
	store := &stubStore{stream: &types.Stream{ID: 1}, record: &types.Record{Content: raw}}

	r := New(store, nil)
	got, err := r.Rewrite(context.Background(), "pod1", "/unrelated")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if got != "/unrelated" {
		t.Fatalf("Rewrite = %q, want unchanged", got)
	}
}
