package postgres

import (
	"encoding/json"

	"github.com/webpods-go/webpods/internal/types"
)

// row is the subset of pgx.Row/pgx.Rows scan shared by QueryRow and
// iterating Rows, letting scanRecord/scanStream serve both call shapes.
type row interface {
	Scan(dest ...any) error
}

func marshalJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func unmarshalJSON(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func unmarshalHeaders(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}
	m := map[string]string{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func scanRecord(r row) (*types.Record, error) {
	var rec types.Record
	var headersRaw []byte
	if err := r.Scan(
		&rec.ID, &rec.StreamID, &rec.Index, &rec.Content, &rec.ContentType, &rec.IsBinary,
		&rec.Size, &rec.Name, &rec.Path, &rec.ContentHash, &rec.Hash, &rec.PreviousHash,
		&rec.UserID, &rec.Storage, &headersRaw, &rec.Deleted, &rec.Purged, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	headers, err := unmarshalHeaders(headersRaw)
	if err != nil {
		return nil, err
	}
	rec.Headers = headers
	return &rec, nil
}

func scanStream(r row) (*types.Stream, error) {
	var s types.Stream
	var metadataRaw []byte
	if err := r.Scan(
		&s.ID, &s.PodName, &s.Name, &s.Path, &s.ParentID, &s.UserID, &s.AccessPermission,
		&metadataRaw, &s.HasSchema, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	metadata, err := unmarshalJSON(metadataRaw)
	if err != nil {
		return nil, err
	}
	s.Metadata = metadata
	return &s, nil
}

func scanPod(r row) (*types.Pod, error) {
	var p types.Pod
	var metadataRaw []byte
	if err := r.Scan(&p.Name, &p.OwnerUserID, &metadataRaw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	metadata, err := unmarshalJSON(metadataRaw)
	if err != nil {
		return nil, err
	}
	p.Metadata = metadata
	return &p, nil
}
