package records

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/storage"
	"github.com/webpods-go/webpods/internal/types"
)

// fakeStore is a minimal in-memory storage.Store used to exercise the
// append algorithm and read paths without a database, the same role
// the teacher's mockStorage plays for its own domain tests.
type fakeStore struct {
	mu      sync.Mutex
	records map[int64][]*types.Record
	streams map[int64]*types.Stream
	nextID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[int64][]*types.Record), streams: make(map[int64]*types.Stream)}
}

func (f *fakeStore) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(&fakeTx{store: f})
}

func (f *fakeStore) GetLatestRecordByName(_ context.Context, streamID int64, name string) (*types.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *types.Record
	for _, r := range f.records[streamID] {
		if r.Name == name && (latest == nil || r.Index > latest.Index) {
			latest = r
		}
	}
	if latest == nil {
		return nil, apperrors.New(apperrors.KindRecordNotFound, "not found")
	}
	return latest, nil
}

func (f *fakeStore) FindLatestTombstone(_ context.Context, streamID int64, originalName string) (*types.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *types.Record
	prefix := originalName + ".deleted."
	for _, r := range f.records[streamID] {
		if len(r.Name) > len(prefix) && r.Name[:len(prefix)] == prefix {
			if latest == nil || r.Index > latest.Index {
				latest = r
			}
		}
	}
	return latest, nil
}

func (f *fakeStore) RecordCount(_ context.Context, streamID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.records[streamID])), nil
}

func (f *fakeStore) GetRecordByIndex(_ context.Context, streamID int64, index int64) (*types.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records[streamID] {
		if r.Index == index {
			return r, nil
		}
	}
	return nil, apperrors.New(apperrors.KindRecordNotFound, "not found")
}

func (f *fakeStore) GetRecordRange(_ context.Context, streamID int64, from, to int64) ([]*types.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Record
	for _, r := range f.records[streamID] {
		if r.Index >= from && r.Index < to {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListRecords(_ context.Context, streamID int64, opts storage.ListOptions) (*storage.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Record
	for _, r := range f.records[streamID] {
		if r.Index > opts.After {
			out = append(out, r)
		}
	}
	return &storage.ListResult{Records: out, Total: len(out), HasMore: false}, nil
}

func (f *fakeStore) ListRecordsAcrossStreams(ctx context.Context, streamIDs []int64, opts storage.ListOptions) (*storage.ListResult, error) {
	return &storage.ListResult{}, nil
}

func (f *fakeStore) HasSiblingStream(_ context.Context, parentStreamID int64, name string) (bool, error) {
	return false, nil
}

func (f *fakeStore) StreamHasSiblingRecordByID(_ context.Context, parentStreamID int64, name string) (bool, error) {
	return false, nil
}

func (f *fakeStore) GetStream(_ context.Context, id int64) (*types.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindStreamNotFound, "not found")
	}
	return s, nil
}

func (f *fakeStore) GetStreamByPath(context.Context, string, string) (*types.Stream, error) {
	return nil, apperrors.New(apperrors.KindStreamNotFound, "not implemented")
}
func (f *fakeStore) ListChildStreams(context.Context, *int64, string) ([]*types.Stream, error) {
	return nil, nil
}
func (f *fakeStore) ListDescendantStreams(context.Context, string, string) ([]*types.Stream, error) {
	return nil, nil
}
func (f *fakeStore) CreateStream(context.Context, string, *int64, string, string, string, string, map[string]any) (*types.Stream, error) {
	return nil, nil
}
func (f *fakeStore) DeleteStream(context.Context, int64) error { return nil }
func (f *fakeStore) ListAllStreams(context.Context, string) ([]*types.Stream, error) {
	return nil, nil
}
func (f *fakeStore) UpdateStream(context.Context, int64, *string, map[string]any) (*types.Stream, error) {
	return nil, nil
}
func (f *fakeStore) SetHasSchema(context.Context, int64, bool) error { return nil }

func (f *fakeStore) CreatePod(context.Context, string, string, map[string]any) (*types.Pod, error) {
	return nil, nil
}
func (f *fakeStore) GetPod(context.Context, string) (*types.Pod, error)       { return nil, nil }
func (f *fakeStore) DeletePod(context.Context, string) error                 { return nil }
func (f *fakeStore) ListPodsForUser(context.Context, string) ([]*types.Pod, error) { return nil, nil }

func (f *fakeStore) CheckAndIncrementFixedWindow(context.Context, string, types.RateLimitAction, time.Duration, int64, time.Time) (bool, int64, time.Time, error) {
	return true, 0, time.Time{}, nil
}
func (f *fakeStore) CleanupRateLimitBuckets(context.Context, time.Time) (int64, error) { return 0, nil }

func (f *fakeStore) Close() error { return nil }

type fakeTx struct {
	store *fakeStore
}

func (t *fakeTx) LockLatestRecord(_ context.Context, streamID int64) (*types.Record, error) {
	recs := t.store.records[streamID]
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[len(recs)-1], nil
}

func (t *fakeTx) InsertRecord(_ context.Context, rec *types.Record) error {
	t.store.nextID++
	rec.ID = t.store.nextID
	t.store.records[rec.StreamID] = append(t.store.records[rec.StreamID], rec)
	return nil
}

func (t *fakeTx) HasSiblingStream(context.Context, int64, string) (bool, error) { return false, nil }
func (t *fakeTx) GetStreamForUpdate(_ context.Context, id int64) (*types.Stream, error) {
	return t.store.GetStream(context.Background(), id)
}
func (t *fakeTx) SetStreamHasSchema(context.Context, int64, bool) error            { return nil }
func (t *fakeTx) SetStreamAccessPermission(context.Context, int64, string) error   { return nil }
func (t *fakeTx) SetStreamMetadata(context.Context, int64, map[string]any) error   { return nil }
func (t *fakeTx) OverwriteRecordsForPurge(_ context.Context, streamID int64, name string) (int, error) {
	n := 0
	for _, r := range t.store.records[streamID] {
		if r.Name == name {
			r.Content = nil
			r.ContentHash = "purged"
			r.Deleted = true
			r.Purged = true
			n++
		}
	}
	return n, nil
}

var _ storage.Store = (*fakeStore)(nil)
var _ storage.Transaction = (*fakeTx)(nil)

func testStream() *types.Stream {
	return &types.Stream{ID: 1, PodName: "pod1", Path: "blog"}
}

func TestAppendBuildsHashChain(t *testing.T) {
	store := newFakeStore()
	store.streams[1] = testStream()
	svc := New(store, nil, nil)
	ctx := context.Background()

	first, err := svc.Append(ctx, AppendInput{StreamID: 1, Stream: testStream(), Content: []byte("hello"), ContentType: "text/plain", UserID: "alice", RecordName: "post1"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if first.Index != 0 {
		t.Fatalf("first.Index = %d, want 0", first.Index)
	}
	if first.PreviousHash != nil {
		t.Fatal("genesis record must have nil previous hash")
	}

	second, err := svc.Append(ctx, AppendInput{StreamID: 1, Stream: testStream(), Content: []byte("world"), ContentType: "text/plain", UserID: "alice", RecordName: "post2"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if second.Index != 1 {
		t.Fatalf("second.Index = %d, want 1", second.Index)
	}
	if second.PreviousHash == nil || *second.PreviousHash != first.Hash {
		t.Fatal("second record must chain to first record's hash")
	}
}

func TestGetByNameSkipsTombstonedRecord(t *testing.T) {
	store := newFakeStore()
	stream := testStream()
	store.streams[1] = stream
	svc := New(store, nil, nil)
	ctx := context.Background()

	if _, err := svc.Append(ctx, AppendInput{StreamID: 1, Stream: stream, Content: []byte("v1"), ContentType: "text/plain", UserID: "alice", RecordName: "doc"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := svc.SoftDelete(ctx, 1, stream, "doc", "alice"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	if _, err := svc.GetByName(ctx, 1, "doc"); apperrors.KindOf(err) != apperrors.KindRecordNotFound {
		t.Fatalf("expected RECORD_NOT_FOUND after soft delete, got %v", err)
	}
}

func TestResolveIndexNegative(t *testing.T) {
	store := newFakeStore()
	stream := testStream()
	store.streams[1] = stream
	svc := New(store, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Append(ctx, AppendInput{StreamID: 1, Stream: stream, Content: []byte("x"), ContentType: "text/plain", UserID: "alice", RecordName: "r"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	idx, err := svc.ResolveIndex(ctx, 1, -1)
	if err != nil {
		t.Fatalf("ResolveIndex: %v", err)
	}
	if idx != 2 {
		t.Fatalf("ResolveIndex(-1) = %d, want 2", idx)
	}
}
