// Package records implements the append, read, range, list, and
// deletion operations of SPEC_FULL.md §4.3–§4.5: the hash-chained
// append algorithm, pagination-aware reads, and soft-delete/purge.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/cache"
	"github.com/webpods-go/webpods/internal/hashing"
	"github.com/webpods-go/webpods/internal/storage"
	"github.com/webpods-go/webpods/internal/storageadapter"
	"github.com/webpods-go/webpods/internal/types"
	"github.com/webpods-go/webpods/internal/validate"
)

// Service implements the record operations against a storage.Store,
// an optional external storage adapter, and an optional cache.
type Service struct {
	store   storage.Store
	adapter storageadapter.Adapter
	cache   cache.Cache
}

func New(store storage.Store, adapter storageadapter.Adapter, c cache.Cache) *Service {
	return &Service{store: store, adapter: adapter, cache: c}
}

// ContentURL returns a client-fetchable URL for a record stored
// externally (rec.Storage != nil), delegating to the configured
// adapter (SPEC_FULL.md §4.7).
func (s *Service) ContentURL(ctx context.Context, storageID string) (string, error) {
	if s.adapter == nil {
		return "", apperrors.New(apperrors.KindInternal, "no storage adapter configured")
	}
	return s.adapter.URL(ctx, storageID)
}

// AppendInput carries the parameters of a single append call
// (SPEC_FULL.md §4.3).
type AppendInput struct {
	StreamID      int64
	Stream        *types.Stream
	Content       []byte
	ContentType   string
	UserID        string
	RecordName    string
	External      bool
	AllowedHeaders map[string]string
}

// Append runs the full append algorithm of SPEC_FULL.md §4.3: verify no
// conflicting sibling stream exists, lock the latest record, derive the
// next index and hash, optionally delegate to external storage, insert,
// and invalidate caches — all inside one serializable transaction.
func (s *Service) Append(ctx context.Context, in AppendInput) (*types.Record, error) {
	if err := validate.RecordName(in.RecordName); err != nil {
		return nil, err
	}

	normalized, isBinary, err := normalizeContent(in.Content, in.ContentType)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, "normalize record content", err)
	}
	contentHash := hashing.ContentHash(normalized)

	var rec *types.Record
	err = s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		hasSiblingStream, err := tx.HasSiblingStream(ctx, in.StreamID, in.RecordName)
		if err != nil {
			return err
		}
		if hasSiblingStream {
			return apperrors.New(apperrors.KindNameConflict, "a child stream already named: "+in.RecordName)
		}

		previous, err := tx.LockLatestRecord(ctx, in.StreamID)
		if err != nil {
			return err
		}

		var index int64
		var previousHash *string
		if previous != nil {
			index = previous.Index + 1
			ph := previous.Hash
			previousHash = &ph
		}

		now := time.Now()
		chainHash := hashing.ChainHash(previousHash, contentHash, in.UserID, now)

		candidate := &types.Record{
			StreamID:     in.StreamID,
			Index:        index,
			ContentType:  in.ContentType,
			IsBinary:     isBinary,
			Size:         int64(len(normalized)),
			Name:         in.RecordName,
			Path:         in.Stream.Path + "/" + in.RecordName,
			ContentHash:  contentHash,
			Hash:         chainHash,
			PreviousHash: previousHash,
			UserID:       in.UserID,
			Headers:      in.AllowedHeaders,
			CreatedAt:    now,
		}

		useExternal := s.adapter != nil && (in.External || isBinary) && len(normalized) > 0
		if useExternal {
			storageID, err := s.adapter.Store(ctx, in.Stream.PodName, in.Stream.Path, in.RecordName, contentHash, normalized, extensionFor(in.ContentType))
			if err != nil {
				return err
			}
			candidate.Storage = &storageID
			candidate.Content = nil
		} else {
			candidate.Content = normalized
		}

		if err := tx.InsertRecord(ctx, candidate); err != nil {
			return err
		}

		rec = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Invalidate the specific record, the stream's record-lists, and —
	// on the first write to a stream — the stream's own cache entry,
	// since list responses commonly embed denormalized stream metadata
	// (SPEC_FULL.md §4.3 step 9).
	if s.cache != nil {
		_ = cache.InvalidateRecord(ctx, s.cache, in.StreamID, in.RecordName)
		if rec.Index == 0 {
			_ = cache.InvalidateStreamWrite(ctx, s.cache, in.Stream.PodName, in.Stream.Path)
		}
	}
	return rec, nil
}

// normalizeContent canonicalizes JSON payloads (stable key order via a
// round-trip through encoding/json) and passes through everything else
// unchanged, reporting whether the content is binary.
func normalizeContent(content []byte, contentType string) ([]byte, bool, error) {
	if contentType == "application/json" {
		var v any
		if err := json.Unmarshal(content, &v); err != nil {
			return nil, false, fmt.Errorf("invalid json content: %w", err)
		}
		canonical, err := json.Marshal(v)
		if err != nil {
			return nil, false, err
		}
		return canonical, false, nil
	}
	return content, !isTextLike(content), nil
}

func isTextLike(content []byte) bool {
	return !bytes.ContainsRune(content, 0)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "application/json":
		return "json"
	case "text/plain":
		return "txt"
	case "text/html":
		return "html"
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	default:
		return "bin"
	}
}
