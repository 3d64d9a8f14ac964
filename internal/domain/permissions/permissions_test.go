package permissions

import (
	"context"
	"testing"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/storage"
	"github.com/webpods-go/webpods/internal/types"
)

// stubStore implements only the storage.Store methods the permission
// engine calls; every unused method panics if reached, so a test that
// exercises a code path it didn't stub fails loudly instead of
// silently returning zero values.
type stubStore struct {
	storage.Store
	streamsByPath map[string]*types.Stream
	streamsByID   map[int64]*types.Stream
	recordsByName map[int64]map[string]*types.Record
}

func (s *stubStore) GetStreamByPath(_ context.Context, _, path string) (*types.Stream, error) {
	st, ok := s.streamsByPath[path]
	if !ok {
		return nil, apperrors.New(apperrors.KindStreamNotFound, "not found")
	}
	return st, nil
}

func (s *stubStore) GetStream(_ context.Context, id int64) (*types.Stream, error) {
	st, ok := s.streamsByID[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindStreamNotFound, "not found")
	}
	return st, nil
}

func (s *stubStore) GetLatestRecordByName(_ context.Context, streamID int64, name string) (*types.Record, error) {
	rec, ok := s.recordsByName[streamID][name]
	if !ok {
		return nil, apperrors.New(apperrors.KindRecordNotFound, "not found")
	}
	return rec, nil
}

func (s *stubStore) ListRecords(_ context.Context, streamID int64, _ storage.ListOptions) (*storage.ListResult, error) {
	result := &storage.ListResult{}
	for _, rec := range s.recordsByName[streamID] {
		result.Records = append(result.Records, rec)
	}
	result.Total = len(result.Records)
	return result, nil
}

func TestEvaluateOwnRulePublicAllowsAnyoneToRead(t *testing.T) {
	e := New(nil)
	stream := &types.Stream{AccessPermission: "public", UserID: "alice"}

	decided, allow, err := e.evaluateOwnRule(context.Background(), stream, "anyone", ActionRead)
	if err != nil {
		t.Fatalf("evaluateOwnRule: %v", err)
	}
	if !decided || !allow {
		t.Fatalf("decided=%v allow=%v, want true/true", decided, allow)
	}
}

func TestEvaluateOwnRulePublicDeniesAnonymousWrite(t *testing.T) {
	e := New(nil)
	stream := &types.Stream{AccessPermission: "public", UserID: "alice"}

	decided, allow, err := e.evaluateOwnRule(context.Background(), stream, "", ActionWrite)
	if err != nil {
		t.Fatalf("evaluateOwnRule: %v", err)
	}
	if !decided || allow {
		t.Fatalf("decided=%v allow=%v, want true/false", decided, allow)
	}
}

func TestEvaluateOwnRulePrivateOnlyCreator(t *testing.T) {
	e := New(nil)
	stream := &types.Stream{AccessPermission: "private", UserID: "alice"}

	if decided, allow, _ := e.evaluateOwnRule(context.Background(), stream, "alice", ActionRead); !decided || !allow {
		t.Fatal("expected creator allowed on private stream")
	}
	if decided, allow, _ := e.evaluateOwnRule(context.Background(), stream, "bob", ActionRead); !decided || allow {
		t.Fatal("expected non-creator denied on private stream")
	}
}

func TestEvaluatePermissionStreamGrantsListedUser(t *testing.T) {
	perms := &types.Stream{ID: 2, PodName: "pod1", Path: "perms/editors"}
	target := &types.Stream{ID: 1, PodName: "pod1", AccessPermission: "/perms/editors", UserID: "alice"}

	store := &stubStore{
		streamsByPath: map[string]*types.Stream{"perms/editors": perms},
		streamsByID:   map[int64]*types.Stream{1: target, 2: perms},
		recordsByName: map[int64]map[string]*types.Record{
			2: {"bob": {Content: []byte(`{"write":true}`)}},
		},
	}

	e := New(store)
	allow, err := e.Evaluate(context.Background(), target, "bob", ActionWrite)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !allow {
		t.Fatal("expected bob to be granted write via the permission stream")
	}

	allow, err = e.Evaluate(context.Background(), target, "carol", ActionWrite)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if allow {
		t.Fatal("expected carol (not listed) to be denied")
	}
}

func TestEvaluateWalksAncestorWhenUndecided(t *testing.T) {
	parent := &types.Stream{ID: 1, PodName: "pod1", Path: "blog", AccessPermission: "public", UserID: "alice"}
	child := &types.Stream{ID: 2, PodName: "pod1", Path: "blog/drafts", AccessPermission: "", UserID: "alice", ParentID: int64Ptr(1)}

	store := &stubStore{
		streamsByID:   map[int64]*types.Stream{1: parent, 2: child},
		streamsByPath: map[string]*types.Stream{},
		recordsByName: map[int64]map[string]*types.Record{},
	}

	e := New(store)
	allow, err := e.Evaluate(context.Background(), child, "anyone", ActionRead)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !allow {
		t.Fatal("expected read to be allowed via the public parent stream")
	}
}

func int64Ptr(v int64) *int64 { return &v }
