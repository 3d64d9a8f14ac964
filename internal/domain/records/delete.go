package records

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/cache"
	"github.com/webpods-go/webpods/internal/storage"
	"github.com/webpods-go/webpods/internal/types"
)

// tombstoneContent is the JSON body of a soft-delete marker
// (SPEC_FULL.md §4.5).
type tombstoneContent struct {
	Deleted      bool      `json:"deleted"`
	OriginalName string    `json:"originalName"`
	DeletedAt    time.Time `json:"deletedAt"`
	DeletedBy    string    `json:"deletedBy"`
}

// SoftDelete appends a tombstone record named "<name>.deleted.<unix
// nanos>" that subsequent by-name reads skip in favor of, preserving
// the hash chain (SPEC_FULL.md §4.5).
func (s *Service) SoftDelete(ctx context.Context, streamID int64, stream *types.Stream, name, deletedBy string) (*types.Record, error) {
	if _, err := s.store.GetLatestRecordByName(ctx, streamID, name); err != nil {
		return nil, err
	}

	now := time.Now()
	body := tombstoneContent{Deleted: true, OriginalName: name, DeletedAt: now, DeletedBy: deletedBy}
	content, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "marshal tombstone", err)
	}

	tombstoneName := fmt.Sprintf("%s.deleted.%d", name, now.UnixNano())
	return s.Append(ctx, AppendInput{
		StreamID:    streamID,
		Stream:      stream,
		Content:     content,
		ContentType: "application/json",
		UserID:      deletedBy,
		RecordName:  tombstoneName,
	})
}

// Purge permanently overwrites every record named name in streamID:
// content is cleared, deleted/purged flags set, and — if the record
// used external storage — both adapter artifacts are removed
// (SPEC_FULL.md §4.5). Fails RECORD_NOT_FOUND if no such record exists.
func (s *Service) Purge(ctx context.Context, streamID int64, stream *types.Stream, name string) (int, error) {
	latest, err := s.store.GetLatestRecordByName(ctx, streamID, name)
	if err != nil {
		return 0, err
	}

	if s.adapter != nil && latest.Storage != nil {
		if err := s.adapter.Delete(ctx, stream.PodName, stream.Path, name, latest.ContentHash, extensionFor(latest.ContentType), true); err != nil {
			return 0, err
		}
	}

	var affected int
	err = s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		n, err := tx.OverwriteRecordsForPurge(ctx, streamID, name)
		if err != nil {
			return err
		}
		affected = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		_ = cache.InvalidateRecord(ctx, s.cache, streamID, name)
	}
	return affected, nil
}
