package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/domain/permissions"
	"github.com/webpods-go/webpods/internal/domain/records"
	"github.com/webpods-go/webpods/internal/types"
	"github.com/webpods-go/webpods/internal/validate"
)

// allowedEchoHeaders is the server-configured allow-list of custom
// request headers persisted on a record and echoed back on read
// (SPEC_FULL.md §6.2).
var allowedEchoHeaders = []string{"X-Author-Display-Name", "X-Tags"}

func (srv *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	srv.read(w, r, r.URL.Path)
}

func (srv *Server) handleReadRoot(w http.ResponseWriter, r *http.Request) {
	srv.read(w, r, "/")
}

func (srv *Server) read(w http.ResponseWriter, r *http.Request, rawPath string) {
	ctx := r.Context()
	pod := podNameFrom(ctx)
	if pod == "" {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindPodNotFound, "request host does not address a pod"))
		return
	}

	path, err := srv.routing.Rewrite(ctx, pod, rawPath)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}

	q := r.URL.Query()
	hasIndexQuery := q.Has("i") || q.Has("recursive")

	if q.Get("recursive") == "true" {
		srv.readRecursive(w, r, pod, path)
		return
	}

	result, err := srv.resolver.ResolveRead(ctx, pod, path, hasIndexQuery)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}

	action := permissions.ActionRead
	allowed, err := srv.permissions.Evaluate(ctx, result.Stream, userIDFrom(ctx), action)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}
	if !allowed {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindForbidden, "not permitted to read "+path))
		return
	}

	if !result.IsRecord {
		if q.Get("i") != "" {
			srv.readByIndexQuery(w, r, result.Stream, q.Get("i"))
			return
		}
		if q.Get("limit") != "" || q.Get("after") != "" || q.Get("unique") != "" {
			srv.readList(w, r, result.Stream)
			return
		}
		writeJSON(w, http.StatusOK, streamView(result.Stream))
		return
	}

	srv.readSingle(w, r, result.Stream, result.RecordName)
}

func (srv *Server) readSingle(w http.ResponseWriter, r *http.Request, stream *types.Stream, name string) {
	rec, err := srv.records.GetByName(r.Context(), stream.ID, name)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}
	writeRecord(w, r, srv, rec)
}

func (srv *Server) readByIndexQuery(w http.ResponseWriter, r *http.Request, stream *types.Stream, raw string) {
	ctx := r.Context()
	if a, b, ok := strings.Cut(raw, ":"); ok {
		ai, err1 := strconv.ParseInt(a, 10, 64)
		bi, err2 := strconv.ParseInt(b, 10, 64)
		if err1 != nil || err2 != nil {
			writeError(w, r, srv.log, apperrors.New(apperrors.KindInvalidInput, "invalid range query: "+raw))
			return
		}
		from, to, err := srv.records.ResolveRange(ctx, stream.ID, ai, bi)
		if err != nil {
			writeError(w, r, srv.log, err)
			return
		}
		recs, err := srv.records.GetRange(ctx, stream.ID, from, to)
		if err != nil {
			writeError(w, r, srv.log, err)
			return
		}
		writeJSON(w, http.StatusOK, listView(recs, len(recs), false, parseProjection(r.URL.Query())))
		return
	}

	k, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindInvalidInput, "invalid index query: "+raw))
		return
	}
	index, err := srv.records.ResolveIndex(ctx, stream.ID, k)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}
	rec, err := srv.records.GetByIndex(ctx, stream.ID, index)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}
	writeRecord(w, r, srv, rec)
}

func (srv *Server) readList(w http.ResponseWriter, r *http.Request, stream *types.Stream) {
	opts := parseListOptions(r.URL.Query())
	result, err := srv.records.List(r.Context(), stream.ID, opts)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}
	writeJSON(w, http.StatusOK, listView(result.Records, result.Total, result.HasMore, parseProjection(r.URL.Query())))
}

// readRecursive implements SPEC_FULL.md §4.4's recursive list: the
// union of records across path's stream and every descendant, filtered
// to streams the caller may read (denied streams are silently omitted,
// matching property 4's "filter, not fail").
func (srv *Server) readRecursive(w http.ResponseWriter, r *http.Request, pod, path string) {
	ctx := r.Context()

	descendants, err := srv.streams.ListDescendants(ctx, pod, strings.Trim(path, "/"))
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}

	userID := userIDFrom(ctx)
	var streamIDs []int64
	for _, st := range descendants {
		allowed, err := srv.permissions.Evaluate(ctx, st, userID, permissions.ActionRead)
		if err != nil {
			writeError(w, r, srv.log, err)
			return
		}
		if allowed {
			streamIDs = append(streamIDs, st.ID)
		}
	}

	opts := parseListOptions(r.URL.Query())
	result, err := srv.records.ListRecursive(ctx, streamIDs, opts)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}
	writeJSON(w, http.StatusOK, listView(result.Records, result.Total, result.HasMore, parseProjection(r.URL.Query())))
}

func (srv *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pod := podNameFrom(ctx)
	if pod == "" {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindPodNotFound, "request host does not address a pod"))
		return
	}
	userID := userIDFrom(ctx)
	if userID == "" {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindUnauthorized, "append requires an authenticated user"))
		return
	}

	path, err := srv.routing.Rewrite(ctx, pod, r.URL.Path)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}

	streamPath, recordName, err := srv.resolver.ResolveWrite(pod, path)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}

	stream, err := srv.ensureStreamPath(ctx, pod, streamPath, userID)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}

	allowed, err := srv.permissions.Evaluate(ctx, stream, userID, permissions.ActionWrite)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}
	if !allowed {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindForbidden, "not permitted to write "+streamPath))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		writeError(w, r, srv.log, apperrors.Wrap(apperrors.KindInvalidInput, "read request body", err))
		return
	}

	contentType := r.Header.Get("X-Content-Type")
	if contentType == "" {
		contentType = r.Header.Get("Content-Type")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if stream.HasSchema {
		configStream, cfgErr := srv.streams.GetByPath(ctx, pod, stream.Path+"/.config")
		if cfgErr == nil {
			if err := srv.schema.Validate(ctx, pod, stream.Path, configStream.ID, body); err != nil {
				writeError(w, r, srv.log, err)
				return
			}
		} else if apperrors.KindOf(cfgErr) != apperrors.KindStreamNotFound {
			writeError(w, r, srv.log, cfgErr)
			return
		}
	}

	headers := map[string]string{}
	for _, h := range allowedEchoHeaders {
		if v := r.Header.Get(h); v != "" {
			headers[h] = v
		}
	}

	rec, err := srv.records.Append(ctx, records.AppendInput{
		StreamID:       stream.ID,
		Stream:         stream,
		Content:        body,
		ContentType:    contentType,
		UserID:         userID,
		RecordName:     recordName,
		External:       r.Header.Get("X-Record-Type") == "file",
		AllowedHeaders: headers,
	})
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, 0, recordView(rec, projection{}))
}

// ensureStreamPath resolves streamPath to an existing stream, or
// auto-creates every missing segment along the nearest existing
// ancestor with the ancestor's inherited permission, provided the
// caller can write there (SPEC_FULL.md §4.1 write resolution).
// ResolveWrite never returns an empty streamPath — a single-segment
// write targets a stream named by that segment, holding a record named
// pathresolver.DefaultRecordName — so there is always at least one segment to
// resolve or create here.
func (srv *Server) ensureStreamPath(ctx context.Context, pod, streamPath, userID string) (*types.Stream, error) {
	ancestor, missing, err := srv.resolver.NearestExistingAncestor(ctx, pod, streamPath)
	if err != nil {
		return nil, err
	}
	if len(missing) == 0 {
		return ancestor, nil
	}

	access := "public"
	var parentID *int64
	if ancestor != nil {
		allowed, err := srv.permissions.Evaluate(ctx, ancestor, userID, permissions.ActionWrite)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, apperrors.New(apperrors.KindForbidden, "not permitted to create streams under "+ancestor.Path)
		}
		access = ancestor.AccessPermission
		parentID = &ancestor.ID
	}

	current := ancestor
	for _, segment := range missing {
		if err := validate.StreamSegment(segment); err != nil {
			return nil, err
		}
		created, err := srv.streams.Create(ctx, pod, parentID, segment, access, userID, nil)
		if err != nil {
			return nil, err
		}
		current = created
		parentID = &created.ID
	}
	return current, nil
}

func (srv *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pod := podNameFrom(ctx)
	userID := userIDFrom(ctx)
	if pod == "" {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindPodNotFound, "request host does not address a pod"))
		return
	}

	path, err := srv.routing.Rewrite(ctx, pod, r.URL.Path)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}

	result, err := srv.resolver.ResolveRead(ctx, pod, path, false)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}

	allowed, err := srv.permissions.Evaluate(ctx, result.Stream, userID, permissions.ActionWrite)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}
	if !allowed {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindForbidden, "not permitted to delete "+path))
		return
	}

	if !result.IsRecord {
		if err := srv.streams.Delete(ctx, result.Stream.ID); err != nil {
			writeError(w, r, srv.log, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.URL.Query().Get("purge") == "true" {
		if _, err := srv.records.Purge(ctx, result.Stream.ID, result.Stream, result.RecordName); err != nil {
			writeError(w, r, srv.log, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	if _, err := srv.records.SoftDelete(ctx, result.Stream.ID, result.Stream, result.RecordName, userID); err != nil {
		writeError(w, r, srv.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (srv *Server) handleDeletePod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pod := podNameFrom(ctx)
	userID := userIDFrom(ctx)
	if pod == "" {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindPodNotFound, "request host does not address a pod"))
		return
	}

	owner, err := srv.permissions.ResolveOwner(ctx, pod)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}
	if userID == "" || userID != owner {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindForbidden, "only the pod owner may delete it"))
		return
	}

	if err := srv.pods.Delete(ctx, pod, owner); err != nil {
		writeError(w, r, srv.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func parseListOptions(q map[string][]string) records.ListOptions {
	opts := records.ListOptions{}
	if v := first(q, "limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := first(q, "after"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			opts.After = n
		}
	}
	opts.Unique = first(q, "unique") == "true"
	return opts
}

func first(q map[string][]string, key string) string {
	if vs, ok := q[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	if status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	_ = json.NewEncoder(w).Encode(v)
}
