package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/types"
)

func (s *Store) CreateStream(ctx context.Context, podName string, parentID *int64, name, path, access, userID string, metadata map[string]any) (*types.Stream, error) {
	m, err := marshalJSON(metadata)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, "marshal stream metadata", err)
	}
	stream, err := scanStream(s.pool.QueryRow(ctx, `
		INSERT INTO streams (pod_name, name, path, parent_id, user_id, access_permission, metadata, has_schema, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,false,now(),now())
		RETURNING id, pod_name, name, path, parent_id, user_id, access_permission, metadata, has_schema, created_at, updated_at
	`, podName, name, path, parentID, userID, access, m))
	if isUniqueViolation(err) {
		return nil, apperrors.New(apperrors.KindNameConflict, "stream already exists at path: "+path)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "create stream", err)
	}
	return stream, nil
}

func (s *Store) GetStreamByPath(ctx context.Context, podName, path string) (*types.Stream, error) {
	stream, err := scanStream(s.pool.QueryRow(ctx, `
		SELECT id, pod_name, name, path, parent_id, user_id, access_permission, metadata, has_schema, created_at, updated_at
		FROM streams WHERE pod_name = $1 AND path = $2
	`, podName, path))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.New(apperrors.KindStreamNotFound, "stream not found: "+path)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "get stream by path", err)
	}
	return stream, nil
}

func (s *Store) GetStream(ctx context.Context, id int64) (*types.Stream, error) {
	stream, err := scanStream(s.pool.QueryRow(ctx, `
		SELECT id, pod_name, name, path, parent_id, user_id, access_permission, metadata, has_schema, created_at, updated_at
		FROM streams WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.New(apperrors.KindStreamNotFound, "stream not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "get stream", err)
	}
	return stream, nil
}

func (s *Store) ListChildStreams(ctx context.Context, parentID *int64, podName string) ([]*types.Stream, error) {
	var rows pgx.Rows
	var err error
	if parentID == nil {
		rows, err = s.pool.Query(ctx, `
			SELECT id, pod_name, name, path, parent_id, user_id, access_permission, metadata, has_schema, created_at, updated_at
			FROM streams WHERE pod_name = $1 AND parent_id IS NULL ORDER BY name
		`, podName)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, pod_name, name, path, parent_id, user_id, access_permission, metadata, has_schema, created_at, updated_at
			FROM streams WHERE pod_name = $1 AND parent_id = $2 ORDER BY name
		`, podName, *parentID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "list child streams", err)
	}
	defer rows.Close()
	return collectStreams(rows)
}

// ListDescendantStreams returns pathPrefix's stream and every descendant
// under it, used by the recursive list query (SPEC_FULL.md §4.4).
func (s *Store) ListDescendantStreams(ctx context.Context, podName, pathPrefix string) ([]*types.Stream, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, pod_name, name, path, parent_id, user_id, access_permission, metadata, has_schema, created_at, updated_at
		FROM streams
		WHERE pod_name = $1 AND (path = $2 OR path LIKE $3)
		ORDER BY path
	`, podName, pathPrefix, pathPrefix+"/%")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "list descendant streams", err)
	}
	defer rows.Close()
	return collectStreams(rows)
}

// ListAllStreams returns every stream in podName, ordered by path.
func (s *Store) ListAllStreams(ctx context.Context, podName string) ([]*types.Stream, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, pod_name, name, path, parent_id, user_id, access_permission, metadata, has_schema, created_at, updated_at
		FROM streams WHERE pod_name = $1 ORDER BY path
	`, podName)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "list all streams", err)
	}
	defer rows.Close()
	return collectStreams(rows)
}

func collectStreams(rows pgx.Rows) ([]*types.Stream, error) {
	var out []*types.Stream
	for rows.Next() {
		st, err := scanStream(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "scan stream", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// UpdateStream applies a partial update to a stream's mutable fields.
// A nil access or metadata leaves that column unchanged (SPEC_FULL.md
// §6.6 PATCH).
func (s *Store) UpdateStream(ctx context.Context, id int64, access *string, metadata map[string]any) (*types.Stream, error) {
	var metaParam any
	if metadata != nil {
		m, err := marshalJSON(metadata)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInvalidInput, "marshal stream metadata", err)
		}
		metaParam = m
	}
	stream, err := scanStream(s.pool.QueryRow(ctx, `
		UPDATE streams
		SET access_permission = COALESCE($2, access_permission),
		    metadata = COALESCE($3, metadata),
		    updated_at = now()
		WHERE id = $1
		RETURNING id, pod_name, name, path, parent_id, user_id, access_permission, metadata, has_schema, created_at, updated_at
	`, id, access, metaParam))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.New(apperrors.KindStreamNotFound, "stream not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "update stream", err)
	}
	return stream, nil
}

// SetHasSchema flips the has_schema flag, called after a schema record
// is written or cleared (SPEC_FULL.md §4.9, §6.6).
func (s *Store) SetHasSchema(ctx context.Context, id int64, hasSchema bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE streams SET has_schema = $2, updated_at = now() WHERE id = $1`, id, hasSchema)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseErr, "set has_schema", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.KindStreamNotFound, "stream not found")
	}
	return nil
}

func (s *Store) DeleteStream(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM streams WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseErr, "delete stream", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.KindStreamNotFound, "stream not found")
	}
	return nil
}

// HasSiblingStream reports whether parentStreamID already has a child
// stream named name.
func (s *Store) HasSiblingStream(ctx context.Context, parentStreamID int64, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM streams WHERE parent_id = $1 AND name = $2)
	`, parentStreamID, name).Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindDatabaseErr, "check sibling stream", err)
	}
	return exists, nil
}

// StreamHasSiblingRecordByID reports whether stream parentStreamID
// already holds a record named name (SPEC_FULL.md §4.2 name-conflict
// invariant).
func (s *Store) StreamHasSiblingRecordByID(ctx context.Context, parentStreamID int64, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM records WHERE stream_id = $1 AND name = $2)
	`, parentStreamID, name).Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindDatabaseErr, "check sibling record", err)
	}
	return exists, nil
}
