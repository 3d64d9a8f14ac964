package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/types"
)

func (s *Store) CreatePod(ctx context.Context, name, ownerUserID string, metadata map[string]any) (*types.Pod, error) {
	m, err := marshalJSON(metadata)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, "marshal pod metadata", err)
	}
	pod, err := scanPod(s.pool.QueryRow(ctx, `
		INSERT INTO pods (name, owner_user_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING name, owner_user_id, metadata, created_at, updated_at
	`, name, ownerUserID, m))
	if isUniqueViolation(err) {
		return nil, apperrors.New(apperrors.KindPodExists, "pod already exists: "+name)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "create pod", err)
	}
	return pod, nil
}

func (s *Store) GetPod(ctx context.Context, name string) (*types.Pod, error) {
	pod, err := scanPod(s.pool.QueryRow(ctx, `
		SELECT name, owner_user_id, metadata, created_at, updated_at
		FROM pods WHERE name = $1
	`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.New(apperrors.KindPodNotFound, "pod not found: "+name)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "get pod", err)
	}
	return pod, nil
}

func (s *Store) DeletePod(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pods WHERE name = $1`, name)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDatabaseErr, "delete pod", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.KindPodNotFound, "pod not found: "+name)
	}
	return nil
}

func (s *Store) ListPodsForUser(ctx context.Context, userID string) ([]*types.Pod, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, owner_user_id, metadata, created_at, updated_at
		FROM pods WHERE owner_user_id = $1 ORDER BY name
	`, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "list pods for user", err)
	}
	defer rows.Close()

	var pods []*types.Pod
	for rows.Next() {
		p, err := scanPod(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindDatabaseErr, "scan pod", err)
		}
		pods = append(pods, p)
	}
	return pods, rows.Err()
}
