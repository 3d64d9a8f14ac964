package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/storage"
	"github.com/webpods-go/webpods/internal/types"
)

const recordColumns = `id, stream_id, "index", content, content_type, is_binary, size,
       name, path, content_hash, hash, previous_hash, user_id, storage,
       headers, deleted, purged, created_at`

// GetLatestRecordByName returns the highest-index record with the given
// name (SPEC_FULL.md §4.4 "single read"). It does not check for a later
// tombstone or the deleted flag; records.Service.GetByName does the
// tombstone check.
func (s *Store) GetLatestRecordByName(ctx context.Context, streamID int64, name string) (*types.Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE stream_id = $1 AND name = $2
		ORDER BY "index" DESC
		LIMIT 1
	`, streamID, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.New(apperrors.KindRecordNotFound, "record not found: "+name)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "get latest record by name", err)
	}
	return rec, nil
}

func (s *Store) GetRecordByIndex(ctx context.Context, streamID int64, index int64) (*types.Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM records WHERE stream_id = $1 AND "index" = $2
	`, streamID, index))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.New(apperrors.KindRecordNotFound, "no record at index")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "get record by index", err)
	}
	return rec, nil
}

// GetRecordRange returns records with from <= index < to, ascending
// (SPEC_FULL.md §4.4 "range"). Callers resolve negative bounds before
// calling; an empty range (to <= from) is the caller's responsibility
// to detect and short-circuit.
func (s *Store) GetRecordRange(ctx context.Context, streamID int64, from, to int64) ([]*types.Record, error) {
	if to <= from {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE stream_id = $1 AND "index" >= $2 AND "index" < $3
		ORDER BY "index" ASC
	`, streamID, from, to)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "get record range", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *Store) RecordCount(ctx context.Context, streamID int64) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM records WHERE stream_id = $1`, streamID).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindDatabaseErr, "count records", err)
	}
	return count, nil
}

// ListRecords implements the list/unique pagination contract of
// SPEC_FULL.md §4.4. It always fetches one extra row past opts.Limit
// (the "probe row") to compute HasMore, and trims it before returning.
// opts.Unique collapses duplicate names, keeping the max-index row —
// done here in SQL with DISTINCT ON rather than in the caller, since the
// dedup must happen before the limit/probe-row trim is applied.
func (s *Store) ListRecords(ctx context.Context, streamID int64, opts storage.ListOptions) (*storage.ListResult, error) {
	return s.listRecordsFromStreams(ctx, []int64{streamID}, opts, false)
}

func (s *Store) ListRecordsAcrossStreams(ctx context.Context, streamIDs []int64, opts storage.ListOptions) (*storage.ListResult, error) {
	return s.listRecordsFromStreams(ctx, streamIDs, opts, true)
}

// listRecordsFromStreams is shared by the single-stream list and the
// recursive multi-stream list; recursive ordering is by created_at
// (SPEC_FULL.md §4.4 "recursive"), while a single-stream list orders by
// index ascending.
func (s *Store) listRecordsFromStreams(ctx context.Context, streamIDs []int64, opts storage.ListOptions, recursive bool) (*storage.ListResult, error) {
	if len(streamIDs) == 0 {
		return &storage.ListResult{Records: nil, Total: 0, HasMore: false}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	probe := limit + 1

	orderBy := `"index" ASC`
	if recursive {
		orderBy = `created_at ASC, id ASC`
	}

	var rows pgx.Rows
	var err error
	if opts.Unique {
		// A name is excluded from the unique view if a soft-delete
		// tombstone ("<name>.deleted.<ts>") with a greater index exists
		// for it, mirroring GetByName's tombstone-skip (read.go).
		rows, err = s.pool.Query(ctx, `
			SELECT `+recordColumns+` FROM (
				SELECT DISTINCT ON (name) `+recordColumns+`
				FROM records
				WHERE stream_id = ANY($1) AND "index" > $2 AND deleted = false AND purged = false
				ORDER BY name, "index" DESC
			) dedup
			WHERE NOT EXISTS (
				SELECT 1 FROM records t
				WHERE t.stream_id = ANY($1)
				  AND t.name LIKE dedup.name || '.deleted.%'
				  AND t."index" > dedup."index"
			)
			ORDER BY `+orderBy+`
			LIMIT $3
		`, streamIDs, opts.After, probe)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+recordColumns+`
			FROM records
			WHERE stream_id = ANY($1) AND "index" > $2 AND deleted = false AND purged = false
			ORDER BY `+orderBy+`
			LIMIT $3
		`, streamIDs, opts.After, probe)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "list records", err)
	}
	defer rows.Close()

	records, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}

	total, err := s.countVisibleRecords(ctx, streamIDs)
	if err != nil {
		return nil, err
	}

	return &storage.ListResult{Records: records, Total: total, HasMore: hasMore}, nil
}

func (s *Store) countVisibleRecords(ctx context.Context, streamIDs []int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM records WHERE stream_id = ANY($1) AND deleted = false AND purged = false
	`, streamIDs).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindDatabaseErr, "count visible records", err)
	}
	return count, nil
}

// FindLatestTombstone returns the highest-index tombstone record for
// originalName in streamID, or nil if none exists (SPEC_FULL.md §4.5).
func (s *Store) FindLatestTombstone(ctx context.Context, streamID int64, originalName string) (*types.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE stream_id = $1 AND name LIKE $2
		ORDER BY "index" DESC
		LIMIT 1
	`, streamID, originalName+".deleted.%")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "find latest tombstone", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRecord(rows)
}

func collectRecords(rows pgx.Rows) ([]*types.Record, error) {
	var out []*types.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "scan record", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
