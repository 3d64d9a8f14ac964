package pods

import (
	"context"
	"testing"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/storage"
	"github.com/webpods-go/webpods/internal/types"
)

type stubStore struct {
	storage.Store
	byName map[string]*types.Pod
}

func (s *stubStore) GetPod(_ context.Context, name string) (*types.Pod, error) {
	if pod, ok := s.byName[name]; ok {
		return pod, nil
	}
	return nil, apperrors.New(apperrors.KindPodNotFound, "not found")
}

func (s *stubStore) CreatePod(_ context.Context, name, ownerUserID string, metadata map[string]any) (*types.Pod, error) {
	pod := &types.Pod{Name: name, OwnerUserID: ownerUserID, Metadata: metadata}
	s.byName[name] = pod
	return pod, nil
}

func (s *stubStore) DeletePod(_ context.Context, name string) error {
	if _, ok := s.byName[name]; !ok {
		return apperrors.New(apperrors.KindPodNotFound, "not found")
	}
	delete(s.byName, name)
	return nil
}

func TestCreateRejectsInvalidPodName(t *testing.T) {
	s := New(&stubStore{byName: map[string]*types.Pod{}}, nil)
	if _, err := s.Create(context.Background(), "Not_Valid", "alice", nil); apperrors.KindOf(err) != apperrors.KindInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestCreateRejectsDuplicatePod(t *testing.T) {
	store := &stubStore{byName: map[string]*types.Pod{"alice": {Name: "alice"}}}
	s := New(store, nil)
	if _, err := s.Create(context.Background(), "alice", "alice", nil); apperrors.KindOf(err) != apperrors.KindPodExists {
		t.Fatalf("expected POD_EXISTS, got %v", err)
	}
}

func TestCreateRequiresAuthenticatedUser(t *testing.T) {
	s := New(&stubStore{byName: map[string]*types.Pod{}}, nil)
	if _, err := s.Create(context.Background(), "alice", "", nil); apperrors.KindOf(err) != apperrors.KindUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestDeleteCascadesAndRemovesPod(t *testing.T) {
	store := &stubStore{byName: map[string]*types.Pod{"alice": {Name: "alice", OwnerUserID: "alice"}}}
	s := New(store, nil)
	if err := s.Delete(context.Background(), "alice", "alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.GetPod(context.Background(), "alice"); apperrors.KindOf(err) != apperrors.KindPodNotFound {
		t.Fatal("expected pod to be gone after delete")
	}
}
