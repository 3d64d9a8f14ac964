// Package storage defines the interface for the relational data store:
// pods, streams, records, and rate-limit buckets (SPEC_FULL.md §3, §3.1).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/webpods-go/webpods/internal/types"
)

// ErrNotInitialized is returned when a caller uses the store before Open.
var ErrNotInitialized = errors.New("storage: not initialized")

// ListOptions carries the shared pagination/projection parameters used
// by ListRecords and ListRecordsAcrossStreams (SPEC_FULL.md §4.4).
type ListOptions struct {
	Limit  int
	After  int64
	Unique bool
}

// ListResult carries the envelope every list-shaped query returns.
type ListResult struct {
	Records []*types.Record
	Total   int
	HasMore bool
}

// Transaction exposes the subset of Store methods that must run
// atomically within a single database transaction, the same way the
// teacher's Transaction interface isolates multi-step workflows (issue +
// dependency + label) from the single-call convenience methods on Store.
//
// # Transaction Semantics
//
//   - All operations share one pgx.Tx and are invisible to other
//     connections until commit.
//   - If any operation, or the callback itself, returns an error the
//     transaction is rolled back.
//   - A panicking callback also rolls back; the panic is re-raised.
//
// # Postgres specifics
//
//   - Opened at pgx.TxOptions{IsoLevel: pgx.Serializable}.
//   - The append algorithm (SPEC_FULL.md §4.3) holds a row lock via
//     LockLatestRecord's SELECT ... FOR UPDATE for the lifetime of the
//     transaction, which is what makes concurrent appenders to the same
//     stream serialize while appenders to different streams do not
//     block each other (SPEC_FULL.md §5).
//
// # Example usage
//
//	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
//	    if _, err := tx.HasSiblingStream(ctx, streamID, name); err != nil {
//	        return err
//	    }
//	    prev, err := tx.LockLatestRecord(ctx, streamID)
//	    if err != nil {
//	        return err
//	    }
//	    return tx.InsertRecord(ctx, nextRecord(prev))
//	})
type Transaction interface {
	// LockLatestRecord selects the (stream_id, max(index)) row FOR
	// UPDATE, returning nil if the stream is still empty. Must be
	// called before InsertRecord within the same transaction — this is
	// the literal lock point SPEC_FULL.md §5 requires.
	LockLatestRecord(ctx context.Context, streamID int64) (*types.Record, error)
	InsertRecord(ctx context.Context, rec *types.Record) error
	HasSiblingStream(ctx context.Context, streamID int64, name string) (bool, error)
	GetStreamForUpdate(ctx context.Context, id int64) (*types.Stream, error)
	SetStreamHasSchema(ctx context.Context, id int64, has bool) error
	SetStreamAccessPermission(ctx context.Context, id int64, access string) error
	SetStreamMetadata(ctx context.Context, id int64, metadata map[string]any) error
	OverwriteRecordsForPurge(ctx context.Context, streamID int64, name string) (int, error)
}

// Store is the full relational data store used by the domain packages.
type Store interface {
	// RunInTransaction executes fn within one serializable transaction,
	// committing on a nil return and rolling back otherwise (including
	// on panic), mirroring the teacher's RunInTransaction contract.
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Pods
	CreatePod(ctx context.Context, name, ownerUserID string, metadata map[string]any) (*types.Pod, error)
	GetPod(ctx context.Context, name string) (*types.Pod, error)
	DeletePod(ctx context.Context, name string) error
	ListPodsForUser(ctx context.Context, userID string) ([]*types.Pod, error)

	// Streams
	CreateStream(ctx context.Context, podName string, parentID *int64, name, path, access, userID string, metadata map[string]any) (*types.Stream, error)
	GetStreamByPath(ctx context.Context, podName, path string) (*types.Stream, error)
	GetStream(ctx context.Context, id int64) (*types.Stream, error)
	ListChildStreams(ctx context.Context, parentID *int64, podName string) ([]*types.Stream, error)
	ListDescendantStreams(ctx context.Context, podName, pathPrefix string) ([]*types.Stream, error)
	// ListAllStreams returns every stream in podName, ordered by path,
	// for the computed administrative listing (SPEC_FULL.md §6.6).
	ListAllStreams(ctx context.Context, podName string) ([]*types.Stream, error)
	DeleteStream(ctx context.Context, id int64) error
	// UpdateStream applies a partial update (nil fields left unchanged)
	// to access_permission/metadata, the only sanctioned mutation path
	// for an existing stream (SPEC_FULL.md §6.6 PATCH).
	UpdateStream(ctx context.Context, id int64, access *string, metadata map[string]any) (*types.Stream, error)
	// SetHasSchema flips has_schema after a schema record is written or
	// cleared (SPEC_FULL.md §4.9).
	SetHasSchema(ctx context.Context, id int64, hasSchema bool) error
	// HasSiblingStream reports whether parentStreamID already has a
	// child stream named name — the stream half of the sibling
	// name-conflict invariant in SPEC_FULL.md §4.2.
	HasSiblingStream(ctx context.Context, parentStreamID int64, name string) (bool, error)
	// StreamHasSiblingRecordByID reports whether parentStreamID already
	// holds a record named name — the record half of the sibling
	// name-conflict invariant in SPEC_FULL.md §4.2. Root-level streams
	// have no parent stream to hold records, so this is only consulted
	// when creating a non-root stream.
	StreamHasSiblingRecordByID(ctx context.Context, parentStreamID int64, name string) (bool, error)

	// Records
	GetLatestRecordByName(ctx context.Context, streamID int64, name string) (*types.Record, error)
	GetRecordByIndex(ctx context.Context, streamID int64, index int64) (*types.Record, error)
	GetRecordRange(ctx context.Context, streamID int64, from, to int64) ([]*types.Record, error)
	ListRecords(ctx context.Context, streamID int64, opts ListOptions) (*ListResult, error)
	RecordCount(ctx context.Context, streamID int64) (int64, error)
	ListRecordsAcrossStreams(ctx context.Context, streamIDs []int64, opts ListOptions) (*ListResult, error)
	FindLatestTombstone(ctx context.Context, streamID int64, originalName string) (*types.Record, error)

	// Rate limiting (fixed-window Postgres adapter, SPEC_FULL.md §4.11)
	CheckAndIncrementFixedWindow(ctx context.Context, identifier string, action types.RateLimitAction, window time.Duration, limit int64, now time.Time) (allowed bool, remaining int64, resetAt time.Time, err error)
	CleanupRateLimitBuckets(ctx context.Context, olderThan time.Time) (int64, error)

	Close() error
}
