package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/storage"
	"github.com/webpods-go/webpods/internal/types"
)

// RunInTransaction opens a serializable pgx.Tx, runs fn, and commits on a
// nil return — rolling back (re-raising any panic) otherwise. This is
// the realization of SPEC_FULL.md §5's ordering guarantee: the append
// path's row lock (LockLatestRecord) and insert live inside one such
// transaction per call.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseErr, "begin transaction", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = pgxTx.Rollback(ctx)
		}
	}()

	t := &txImpl{tx: pgxTx}
	if err := fn(t); err != nil {
		return err
	}

	if err := pgxTx.Commit(ctx); err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseErr, "commit transaction", err)
	}
	committed = true
	return nil
}

type txImpl struct {
	tx pgx.Tx
}

func (t *txImpl) LockLatestRecord(ctx context.Context, streamID int64) (*types.Record, error) {
	rec, err := scanRecord(t.tx.QueryRow(ctx, `
		SELECT id, stream_id, "index", content, content_type, is_binary, size,
		       name, path, content_hash, hash, previous_hash, user_id, storage,
		       headers, deleted, purged, created_at
		FROM records
		WHERE stream_id = $1
		ORDER BY "index" DESC
		LIMIT 1
		FOR UPDATE
	`, streamID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "lock latest record", err)
	}
	return rec, nil
}

func (t *txImpl) InsertRecord(ctx context.Context, rec *types.Record) error {
	headers, err := marshalJSON(rec.Headers)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInvalidInput, "marshal headers", err)
	}
	err = t.tx.QueryRow(ctx, `
		INSERT INTO records (stream_id, "index", content, content_type, is_binary,
		                      size, name, path, content_hash, hash, previous_hash,
		                      user_id, storage, headers, deleted, purged, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now())
		RETURNING id, created_at
	`,
		rec.StreamID, rec.Index, rec.Content, rec.ContentType, rec.IsBinary,
		rec.Size, rec.Name, rec.Path, rec.ContentHash, rec.Hash, rec.PreviousHash,
		rec.UserID, rec.Storage, headers, rec.Deleted, rec.Purged,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.KindNameConflict, "record index collision (concurrent append)")
		}
		return apperrors.Wrap(apperrors.KindDatabaseErr, "insert record", err)
	}
	return nil
}

func (t *txImpl) HasSiblingStream(ctx context.Context, parentStreamID int64, name string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM streams WHERE parent_id = $1 AND name = $2)
	`, parentStreamID, name).Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindDatabaseErr, "check sibling stream", err)
	}
	return exists, nil
}

func (t *txImpl) GetStreamForUpdate(ctx context.Context, id int64) (*types.Stream, error) {
	s, err := scanStream(t.tx.QueryRow(ctx, `
		SELECT id, pod_name, name, path, parent_id, user_id, access_permission,
		       metadata, has_schema, created_at, updated_at
		FROM streams WHERE id = $1 FOR UPDATE
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.New(apperrors.KindStreamNotFound, "stream not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "get stream for update", err)
	}
	return s, nil
}

func (t *txImpl) SetStreamHasSchema(ctx context.Context, id int64, has bool) error {
	_, err := t.tx.Exec(ctx, `UPDATE streams SET has_schema = $1, updated_at = now() WHERE id = $2`, has, id)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseErr, "set stream has_schema", err)
	}
	return nil
}

func (t *txImpl) SetStreamAccessPermission(ctx context.Context, id int64, access string) error {
	_, err := t.tx.Exec(ctx, `UPDATE streams SET access_permission = $1, updated_at = now() WHERE id = $2`, access, id)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseErr, "set stream access_permission", err)
	}
	return nil
}

func (t *txImpl) SetStreamMetadata(ctx context.Context, id int64, metadata map[string]any) error {
	m, err := marshalJSON(metadata)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInvalidInput, "marshal stream metadata", err)
	}
	_, err = t.tx.Exec(ctx, `UPDATE streams SET metadata = $1, updated_at = now() WHERE id = $2`, m, id)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseErr, "set stream metadata", err)
	}
	return nil
}

// OverwriteRecordsForPurge implements SPEC_FULL.md §4.5's purge: every
// record with the given name in the stream has its content cleared and
// is marked deleted+purged, while hash is preserved so link-only chain
// verification still succeeds.
func (t *txImpl) OverwriteRecordsForPurge(ctx context.Context, streamID int64, name string) (int, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE records
		SET content = '', content_hash = 'purged', deleted = true, purged = true
		WHERE stream_id = $1 AND name = $2
	`, streamID, name)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindDatabaseErr, "purge records", err)
	}
	return int(tag.RowsAffected()), nil
}

// postgresUniqueViolation is the SQLSTATE for a unique_violation.
const postgresUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation
}
