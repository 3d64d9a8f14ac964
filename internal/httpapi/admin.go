package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/domain/permissions"
	"github.com/webpods-go/webpods/internal/domain/records"
	"github.com/webpods-go/webpods/internal/validate"
)

// handleListAllStreams implements GET {pod}.H/.config/api/streams: a
// computed, paginated listing of every stream in the pod the caller
// can read (SPEC_FULL.md §6.6).
func (srv *Server) handleListAllStreams(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pod := podNameFrom(ctx)
	if pod == "" {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindPodNotFound, "request host does not address a pod"))
		return
	}

	all, err := srv.streams.ListAll(ctx, pod)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}

	userID := userIDFrom(ctx)
	readable := make([]streamSummary, 0, len(all))
	for _, st := range all {
		allowed, err := srv.permissions.Evaluate(ctx, st, userID, permissions.ActionRead)
		if err != nil {
			writeError(w, r, srv.log, err)
			return
		}
		if allowed {
			readable = append(readable, streamSummary{
				Name:             st.Name,
				Path:             st.Path,
				AccessPermission: st.AccessPermission,
				HasSchema:        st.HasSchema,
			})
		}
	}

	limit, offset := parsePageParams(r.URL.Query())
	total := len(readable)
	end := offset + limit
	if offset > total {
		offset = total
	}
	if end > total {
		end = total
	}
	page := readable[offset:end]

	writeJSON(w, http.StatusOK, streamListBody{
		Streams: page,
		Total:   total,
		HasMore: end < total,
	})
}

type streamSummary struct {
	Name             string `json:"name"`
	Path             string `json:"path"`
	AccessPermission string `json:"accessPermission"`
	HasSchema        bool   `json:"hasSchema"`
}

type streamListBody struct {
	Streams []streamSummary `json:"streams"`
	Total   int             `json:"total"`
	HasMore bool            `json:"hasMore"`
}

func parsePageParams(q map[string][]string) (limit, offset int) {
	limit = defaultListLimit
	if v := first(q, "limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := first(q, "after"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}
	return limit, offset
}

const defaultListLimit = 100

// handlePatchStream implements PATCH {pod}.H/{stream-path}: the only
// sanctioned way to change access_permission or metadata on an
// existing stream, restricted to the stream's creator or the pod's
// current owner (SPEC_FULL.md §6.6, spec.md §9(i)).
func (srv *Server) handlePatchStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pod := podNameFrom(ctx)
	userID := userIDFrom(ctx)
	if pod == "" {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindPodNotFound, "request host does not address a pod"))
		return
	}
	if userID == "" {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindUnauthorized, "patching a stream requires an authenticated user"))
		return
	}

	path, err := srv.routing.Rewrite(ctx, pod, r.URL.Path)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}
	path = strings.Trim(path, "/")

	stream, err := srv.streams.GetByPath(ctx, pod, path)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}

	owner, err := srv.permissions.ResolveOwner(ctx, pod)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}
	if userID != stream.UserID && userID != owner {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindForbidden, "only the stream creator or pod owner may patch "+path))
		return
	}

	var body struct {
		AccessPermission *string        `json:"accessPermission"`
		Metadata         map[string]any `json:"metadata"`
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, r, srv.log, apperrors.Wrap(apperrors.KindInvalidInput, "read request body", err))
		return
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			writeError(w, r, srv.log, apperrors.Wrap(apperrors.KindInvalidInput, "parse patch body", err))
			return
		}
	}

	updated, err := srv.streams.Update(ctx, stream.ID, body.AccessPermission, body.Metadata)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}

	writeJSON(w, http.StatusOK, streamView(updated))
}

// schemaDefinition mirrors the .config/schema record body of
// SPEC_FULL.md §4.9.
type schemaDefinition struct {
	SchemaType     string          `json:"schemaType" validate:"required,oneof=json-schema none"`
	Schema         json.RawMessage `json:"schema"`
	ValidationMode string          `json:"validationMode" validate:"omitempty,oneof=strict lenient"`
	AppliesTo      string          `json:"appliesTo" validate:"omitempty,oneof=content all"`
}

// handleWriteSchema implements POST {pod}.H/.config/schema/{stream-path}:
// writes the schema record into the target stream's .config child
// (auto-creating it if absent), flips has_schema, and evicts the
// compiled-schema cache entry (SPEC_FULL.md §4.9, §6.6).
func (srv *Server) handleWriteSchema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pod := podNameFrom(ctx)
	userID := userIDFrom(ctx)
	if pod == "" {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindPodNotFound, "request host does not address a pod"))
		return
	}
	if userID == "" {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindUnauthorized, "writing a schema requires an authenticated user"))
		return
	}

	streamPath := strings.Trim(chi.URLParam(r, "*"), "/")
	if streamPath == "" {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindInvalidInput, "schema write requires a target stream path"))
		return
	}

	target, err := srv.streams.GetByPath(ctx, pod, streamPath)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}

	allowed, err := srv.permissions.Evaluate(ctx, target, userID, permissions.ActionWrite)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}
	if !allowed {
		writeError(w, r, srv.log, apperrors.New(apperrors.KindForbidden, "not permitted to configure "+streamPath))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, r, srv.log, apperrors.Wrap(apperrors.KindInvalidInput, "read request body", err))
		return
	}
	var def schemaDefinition
	if err := json.Unmarshal(body, &def); err != nil {
		writeError(w, r, srv.log, apperrors.Wrap(apperrors.KindInvalidInput, "parse schema definition", err))
		return
	}
	if err := validate.Struct(def); err != nil {
		writeError(w, r, srv.log, err)
		return
	}

	configStream, err := srv.ensureStreamPath(ctx, pod, streamPath+"/.config", userID)
	if err != nil {
		writeError(w, r, srv.log, err)
		return
	}

	canonical, err := json.Marshal(def)
	if err != nil {
		writeError(w, r, srv.log, apperrors.Wrap(apperrors.KindInternal, "marshal schema definition", err))
		return
	}

	if _, err := srv.records.Append(ctx, records.AppendInput{
		StreamID:    configStream.ID,
		Stream:      configStream,
		Content:     canonical,
		ContentType: "application/json",
		UserID:      userID,
		RecordName:  "schema",
	}); err != nil {
		writeError(w, r, srv.log, err)
		return
	}

	hasSchema := def.SchemaType == "json-schema"
	if err := srv.streams.SetHasSchema(ctx, target.ID, hasSchema); err != nil {
		writeError(w, r, srv.log, err)
		return
	}
	srv.schema.Evict(pod, streamPath)

	w.WriteHeader(http.StatusOK)
}
