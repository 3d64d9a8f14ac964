package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/domain/permissions"
	"github.com/webpods-go/webpods/internal/domain/pods"
	"github.com/webpods-go/webpods/internal/domain/records"
	"github.com/webpods-go/webpods/internal/domain/routing"
	"github.com/webpods-go/webpods/internal/domain/schema"
	"github.com/webpods-go/webpods/internal/domain/streams"
	"github.com/webpods-go/webpods/internal/pathresolver"
	"github.com/webpods-go/webpods/internal/storage"
	"github.com/webpods-go/webpods/internal/types"
	"go.uber.org/zap"
)

// fakeStore is a minimal in-memory storage.Store, playing the same
// role as the teacher's mockStorage: enough behavior to drive the
// full HTTP pipeline end to end without a database.
type fakeStore struct {
	mu       sync.Mutex
	pods     map[string]*types.Pod
	streams  map[int64]*types.Stream
	byPath   map[string]int64 // "pod\x00path" -> stream id
	records  map[int64][]*types.Record
	nextSID  int64
	nextRID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pods:    make(map[string]*types.Pod),
		streams: make(map[int64]*types.Stream),
		byPath:  make(map[string]int64),
		records: make(map[int64][]*types.Record),
	}
}

func pathKey(pod, path string) string { return pod + "\x00" + path }

func (f *fakeStore) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(&fakeTx{store: f})
}

func (f *fakeStore) CreatePod(_ context.Context, name, ownerUserID string, metadata map[string]any) (*types.Pod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &types.Pod{Name: name, OwnerUserID: ownerUserID, Metadata: metadata}
	f.pods[name] = p
	return p, nil
}

func (f *fakeStore) GetPod(_ context.Context, name string) (*types.Pod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.pods[name]; ok {
		return p, nil
	}
	return nil, apperrors.New(apperrors.KindPodNotFound, "pod not found: "+name)
}

func (f *fakeStore) DeletePod(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pods, name)
	return nil
}

func (f *fakeStore) ListPodsForUser(context.Context, string) ([]*types.Pod, error) { return nil, nil }

func (f *fakeStore) CreateStream(_ context.Context, podName string, parentID *int64, name, path, access, userID string, metadata map[string]any) (*types.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSID++
	st := &types.Stream{
		ID: f.nextSID, PodName: podName, Name: name, Path: path,
		ParentID: parentID, UserID: userID, AccessPermission: access, Metadata: metadata,
	}
	f.streams[st.ID] = st
	f.byPath[pathKey(podName, path)] = st.ID
	return st, nil
}

func (f *fakeStore) GetStreamByPath(_ context.Context, podName, path string) (*types.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byPath[pathKey(podName, path)]
	if !ok {
		return nil, apperrors.New(apperrors.KindStreamNotFound, "stream not found: "+path)
	}
	return f.streams[id], nil
}

func (f *fakeStore) GetStream(_ context.Context, id int64) (*types.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.streams[id]; ok {
		return st, nil
	}
	return nil, apperrors.New(apperrors.KindStreamNotFound, "stream not found")
}

func (f *fakeStore) ListChildStreams(_ context.Context, parentID *int64, podName string) ([]*types.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Stream
	for _, st := range f.streams {
		if st.PodName != podName {
			continue
		}
		if (st.ParentID == nil) == (parentID == nil) && (parentID == nil || *st.ParentID == *parentID) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeStore) ListDescendantStreams(context.Context, string, string) ([]*types.Stream, error) {
	return nil, nil
}

func (f *fakeStore) ListAllStreams(_ context.Context, podName string) ([]*types.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Stream
	for _, st := range f.streams {
		if st.PodName == podName {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteStream(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.streams, id)
	return nil
}

func (f *fakeStore) UpdateStream(_ context.Context, id int64, access *string, metadata map[string]any) (*types.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.streams[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindStreamNotFound, "stream not found")
	}
	if access != nil {
		st.AccessPermission = *access
	}
	if metadata != nil {
		st.Metadata = metadata
	}
	return st, nil
}

func (f *fakeStore) SetHasSchema(_ context.Context, id int64, hasSchema bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.streams[id]; ok {
		st.HasSchema = hasSchema
	}
	return nil
}

func (f *fakeStore) HasSiblingStream(context.Context, int64, string) (bool, error)           { return false, nil }
func (f *fakeStore) StreamHasSiblingRecordByID(context.Context, int64, string) (bool, error) { return false, nil }

func (f *fakeStore) GetLatestRecordByName(_ context.Context, streamID int64, name string) (*types.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *types.Record
	for _, r := range f.records[streamID] {
		if r.Name == name && !r.Deleted && (latest == nil || r.Index > latest.Index) {
			latest = r
		}
	}
	if latest == nil {
		return nil, apperrors.New(apperrors.KindRecordNotFound, "record not found: "+name)
	}
	return latest, nil
}

func (f *fakeStore) GetRecordByIndex(_ context.Context, streamID int64, index int64) (*types.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records[streamID] {
		if r.Index == index {
			return r, nil
		}
	}
	return nil, apperrors.New(apperrors.KindRecordNotFound, "record not found")
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
	return &storage.ListResult{Records: out, Total: len(out)}, nil
}

func (f *fakeStore) RecordCount(_ context.Context, streamID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.records[streamID])), nil
}

func (f *fakeStore) ListRecordsAcrossStreams(context.Context, []int64, storage.ListOptions) (*storage.ListResult, error) {
	return &storage.ListResult{}, nil
}

func (f *fakeStore) FindLatestTombstone(context.Context, int64, string) (*types.Record, error) {
	return nil, nil
}

func (f *fakeStore) CheckAndIncrementFixedWindow(context.Context, string, types.RateLimitAction, time.Duration, int64, time.Time) (bool, int64, time.Time, error) {
	return true, 0, time.Time{}, nil
}

func (f *fakeStore) CleanupRateLimitBuckets(context.Context, time.Time) (int64, error) { return 0, nil }

func (f *fakeStore) Close() error { return nil }

type fakeTx struct{ store *fakeStore }

func (t *fakeTx) LockLatestRecord(_ context.Context, streamID int64) (*types.Record, error) {
	recs := t.store.records[streamID]
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[len(recs)-1], nil
}

func (t *fakeTx) InsertRecord(_ context.Context, rec *types.Record) error {
	t.store.nextRID++
	rec.ID = t.store.nextRID
	t.store.records[rec.StreamID] = append(t.store.records[rec.StreamID], rec)
	return nil
}

func (t *fakeTx) HasSiblingStream(context.Context, int64, string) (bool, error) { return false, nil }

func (t *fakeTx) GetStreamForUpdate(_ context.Context, id int64) (*types.Stream, error) {
	return t.store.GetStream(context.Background(), id)
}

func (t *fakeTx) SetStreamHasSchema(ctx context.Context, id int64, has bool) error {
	return t.store.SetHasSchema(ctx, id, has)
}

func (t *fakeTx) SetStreamAccessPermission(_ context.Context, id int64, access string) error {
	// ignore returned stream; UpdateStream mutates in place under store.mu
	_, err := t.store.UpdateStream(context.Background(), id, &access, nil)
	return err
}

func (t *fakeTx) SetStreamMetadata(_ context.Context, id int64, metadata map[string]any) error {
	_, err := t.store.UpdateStream(context.Background(), id, nil, metadata)
	return err
}

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

func newTestServer(t *testing.T) (*Server, *fakeStore) {
	t.Helper()
	store := newFakeStore()

	srv := New(Deps{
		Log:         zap.NewNop().Sugar(),
		MainHost:    "webpods.test",
		JWTSecret:   "secret",
		Pods:        pods.New(store, nil),
		Streams:     streams.New(store),
		Records:     records.New(store, nil, nil),
		Permissions: permissions.New(store),
		Routing:     routing.New(store, nil),
		Schema:      schema.New(store),
		Resolver:    pathresolver.New(store),
	})
	return srv, store
}

func TestAppendThenReadRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	appendReq := httptest.NewRequest(http.MethodPost, "http://alice.webpods.test/blog/posts/hello", stringBody(`{"title":"hi"}`))
	appendReq.Header.Set("Content-Type", "application/json")
	appendReq.Header.Set("Authorization", "Bearer "+testJWT(t, "alice", ""))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, appendReq)
	if rec.Code != http.StatusCreated {
		t.Fatalf("append status = %d, body = %s", rec.Code, rec.Body.String())
	}

	readReq := httptest.NewRequest(http.MethodGet, "http://alice.webpods.test/blog/posts/hello", nil)
	readRec := httptest.NewRecorder()
	router.ServeHTTP(readRec, readReq)
	if readRec.Code != http.StatusOK {
		t.Fatalf("read status = %d, body = %s", readRec.Code, readRec.Body.String())
	}
}

func TestReadMissingPodHostFails(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "http://webpods.test/anything", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for missing pod scope", rec.Code)
	}
}

func TestAppendWithoutAuthIsRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "http://alice.webpods.test/blog/posts/hello", stringBody(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for anonymous append", rec.Code)
	}
}

func stringBody(s string) io.Reader {
	return strings.NewReader(s)
}

func testJWT(t *testing.T, sub, podScope string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub}
	if podScope != "" {
		claims["pod_scope"] = podScope
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign test jwt: %v", err)
	}
	return signed
}
