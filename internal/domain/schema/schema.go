// Package schema implements per-stream JSON Schema compilation,
// caching, and validation (SPEC_FULL.md §4.9), using
// xeipuuv/gojsonschema for the actual schema engine since the core
// only needs to compile and validate, not generate or annotate.
package schema

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/storage"
)

// schemaRecordName is the fixed name of the schema-defining record
// inside a stream's .config child stream.
const schemaRecordName = "schema"

// definition is the shape of the schema record's content
// (SPEC_FULL.md §4.9).
type definition struct {
	SchemaType      string          `json:"schemaType"`
	Schema          json.RawMessage `json:"schema"`
	ValidationMode  string          `json:"validationMode"`
	AppliesTo       string          `json:"appliesTo"`
}

// Validator compiles and caches JSON schemas keyed by (pod,
// stream.path), process-global per SPEC_FULL.md §5.
type Validator struct {
	store storage.Store

	mu    sync.Mutex
	cache map[string]*gojsonschema.Schema
}

func New(store storage.Store) *Validator {
	return &Validator{store: store, cache: make(map[string]*gojsonschema.Schema)}
}

func cacheKey(podName, streamPath string) string {
	return podName + ":" + streamPath
}

// Validate checks content against the compiled schema for
// (podName, streamPath), compiling and caching it on first use. A
// config stream with no schema record, or whose definition sets
// schemaType="none", has nothing to validate and always succeeds;
// has_schema itself is not consulted here (handleAppend checks it).
func (v *Validator) Validate(ctx context.Context, podName, streamPath string, configStreamID int64, content []byte) error {
	schema, err := v.getOrCompile(ctx, podName, streamPath, configStreamID)
	if err != nil {
		return err
	}
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(content))
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidationErr, "evaluate schema", err)
	}
	if !result.Valid() {
		details := map[string]any{"errors": formatErrors(result.Errors())}
		return apperrors.New(apperrors.KindValidationErr, "content does not satisfy the stream's schema").WithDetails(details)
	}
	return nil
}

func (v *Validator) getOrCompile(ctx context.Context, podName, streamPath string, configStreamID int64) (*gojsonschema.Schema, error) {
	key := cacheKey(podName, streamPath)

	v.mu.Lock()
	if cached, ok := v.cache[key]; ok {
		v.mu.Unlock()
		return cached, nil
	}
	v.mu.Unlock()

	rec, err := v.store.GetLatestRecordByName(ctx, configStreamID, schemaRecordName)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindRecordNotFound {
			return nil, nil
		}
		return nil, err
	}

	var def definition
	if err := json.Unmarshal(rec.Content, &def); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidationErr, "parse schema definition", err)
	}
	if def.SchemaType == "none" || def.SchemaType == "" {
		v.Evict(podName, streamPath)
		return nil, nil
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(def.Schema))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidationErr, "compile schema", err)
	}

	v.mu.Lock()
	v.cache[key] = compiled
	v.mu.Unlock()
	return compiled, nil
}

// Evict drops the cached compiled schema for (podName, streamPath),
// called when the schema record is rewritten (SPEC_FULL.md §4.9).
func (v *Validator) Evict(podName, streamPath string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.cache, cacheKey(podName, streamPath))
}

func formatErrors(errs []gojsonschema.ResultError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.String()
	}
	return out
}
