package schema

import (
	"context"
	"testing"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/storage"
	"github.com/webpods-go/webpods/internal/types"
)

type stubStore struct {
	storage.Store
	record *types.Record
}

func (s *stubStore) GetLatestRecordByName(context.Context, int64, string) (*types.Record, error) {
	if s.record == nil {
		return nil, apperrors.New(apperrors.KindRecordNotFound, "not found")
	}
	return s.record, nil
}

func TestValidateNoSchemaAlwaysSucceeds(t *testing.T) {
	v := New(&stubStore{})
	if err := v.Validate(context.Background(), "pod1", "blog", 1, []byte(`{"title":"x"}`)); err != nil {
		t.Fatalf("Validate with no schema record: %v", err)
	}
}

func TestValidateRejectsNonConformingContent(t *testing.T) {
	schemaRec := &types.Record{Content: []byte(`{
		"schemaType": "json-schema",
		"schema": {"type":"object","required":["title"],"properties":{"title":{"type":"string"}}}
	}`)}
	v := New(&stubStore{record: schemaRec})

	if err := v.Validate(context.Background(), "pod1", "blog", 1, []byte(`{}`)); apperrors.KindOf(err) != apperrors.KindValidationErr {
		t.Fatalf("expected VALIDATION_ERROR for missing required field, got %v", err)
	}
	if err := v.Validate(context.Background(), "pod1", "blog", 1, []byte(`{"title":"hi"}`)); err != nil {
		t.Fatalf("expected conforming content to pass, got %v", err)
	}
}

func TestValidateCachesCompiledSchema(t *testing.T) {
	schemaRec := &types.Record{Content: []byte(`{"schemaType":"json-schema","schema":{"type":"object"}}`)}
	v := New(&stubStore{record: schemaRec})

	if err := v.Validate(context.Background(), "pod1", "blog", 1, []byte(`{}`)); err != nil {
		t.Fatalf("first Validate: %v", err)
	}
	if _, ok := v.cache[cacheKey("pod1", "blog")]; !ok {
		t.Fatal("expected compiled schema to be cached")
	}

	v.Evict("pod1", "blog")
	if _, ok := v.cache[cacheKey("pod1", "blog")]; ok {
		t.Fatal("expected Evict to clear the cache entry")
	}
}
