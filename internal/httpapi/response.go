package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/webpods-go/webpods/internal/types"
)

// projection carries the `fields=`/`truncate=` query parameters of
// SPEC_FULL.md §4.4, applied to a read's result after filtering:
// fields restricts a JSON record view to the named top-level keys,
// truncate caps content length. Both are optional and independent.
type projection struct {
	fields   map[string]bool // nil means "all fields"
	truncate int             // 0 means "no truncation"
}

func parseProjection(q url.Values) projection {
	var p projection
	if raw := q.Get("fields"); raw != "" {
		p.fields = make(map[string]bool)
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				p.fields[f] = true
			}
		}
	}
	if raw := q.Get("truncate"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			p.truncate = n
		}
	}
	return p
}

func truncateString(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

// streamViewBody is the JSON projection of a stream returned from a
// read that resolves to a stream (SPEC_FULL.md §6.2).
type streamViewBody struct {
	Path             string         `json:"path"`
	AccessPermission string         `json:"accessPermission"`
	HasSchema        bool           `json:"hasSchema"`
	UserID           string         `json:"userId"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        string         `json:"createdAt"`
	UpdatedAt        string         `json:"updatedAt"`
}

func streamView(s *types.Stream) streamViewBody {
	return streamViewBody{
		Path:             s.Path,
		AccessPermission: s.AccessPermission,
		HasSchema:        s.HasSchema,
		UserID:           s.UserID,
		Metadata:         s.Metadata,
		CreatedAt:        s.CreatedAt.Format(timeLayout),
		UpdatedAt:        s.UpdatedAt.Format(timeLayout),
	}
}

// recordViewBody is the JSON projection of a record for list/range
// responses and the Created-append response body (SPEC_FULL.md §6.2).
// Single-record GETs write the raw content instead, via writeRecord.
type recordViewBody struct {
	Index        int64             `json:"index"`
	Name         string            `json:"name"`
	Path         string            `json:"path"`
	ContentType  string            `json:"contentType"`
	Size         int64             `json:"size"`
	Hash         string            `json:"hash"`
	PreviousHash *string           `json:"previousHash"`
	UserID       string            `json:"userId"`
	Headers      map[string]string `json:"headers,omitempty"`
	CreatedAt    string            `json:"createdAt"`
	Content      any               `json:"content,omitempty"`
}

func recordView(rec *types.Record, proj projection) recordViewBody {
	view := recordViewBody{
		Index:        rec.Index,
		Name:         rec.Name,
		Path:         rec.Path,
		ContentType:  rec.ContentType,
		Size:         rec.Size,
		Hash:         rec.Hash,
		PreviousHash: rec.PreviousHash,
		UserID:       rec.UserID,
		Headers:      rec.Headers,
		CreatedAt:    rec.CreatedAt.Format(timeLayout),
	}
	if rec.Storage == nil && !rec.IsBinary {
		view.Content = inlineContent(rec)
		if proj.truncate > 0 {
			if s, ok := view.Content.(string); ok {
				view.Content = truncateString(s, proj.truncate)
			}
		}
	}
	return view
}

// selectFields drops every top-level key of view not named in
// proj.fields, round-tripping through JSON since recordViewBody has no
// field-subset representation of its own. A nil proj.fields selects
// every field (no projection requested).
func selectFields(view recordViewBody, proj projection) any {
	if proj.fields == nil {
		return view
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return view
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return view
	}
	for key := range m {
		if !proj.fields[key] {
			delete(m, key)
		}
	}
	return m
}

// inlineContent decodes JSON content back into a value so list and
// append responses embed structured content rather than a base64
// string; anything else comes back as a plain string.
func inlineContent(rec *types.Record) any {
	if rec.ContentType == "application/json" {
		var v any
		if json.Unmarshal(rec.Content, &v) == nil {
			return v
		}
	}
	return string(rec.Content)
}

type listViewBody struct {
	Records []any `json:"records"`
	Total   int   `json:"total"`
	HasMore bool  `json:"hasMore"`
}

func listView(records []*types.Record, total int, hasMore bool, proj projection) listViewBody {
	views := make([]any, len(records))
	for i, rec := range records {
		views[i] = selectFields(recordView(rec, proj), proj)
	}
	return listViewBody{Records: views, Total: total, HasMore: hasMore}
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// writeRecord writes a single-record read response (SPEC_FULL.md
// §6.2): the record's raw content with its stored content type, plus
// chain/provenance headers. Externally-stored records are redirected
// to the adapter's URL instead of being read back through the API
// process.
func writeRecord(w http.ResponseWriter, r *http.Request, srv *Server, rec *types.Record) {
	writeRecordProj(w, r, srv, rec, parseProjection(r.URL.Query()))
}

// writeRecordProj is writeRecord with an explicit projection; writeRecord
// is its only caller. Range reads render through listView instead.
func writeRecordProj(w http.ResponseWriter, r *http.Request, srv *Server, rec *types.Record, proj projection) {
	w.Header().Set("X-Hash", rec.Hash)
	if rec.PreviousHash != nil {
		w.Header().Set("X-Previous-Hash", *rec.PreviousHash)
	}
	w.Header().Set("X-Author", rec.UserID)
	w.Header().Set("X-Timestamp", rec.CreatedAt.Format(timeLayout))
	w.Header().Set("X-Index", strconv.FormatInt(rec.Index, 10))
	for k, v := range rec.Headers {
		w.Header().Set(k, v)
	}

	if rec.Storage != nil {
		url, err := srv.records.ContentURL(r.Context(), *rec.Storage)
		if err != nil {
			writeError(w, r, srv.log, err)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	content := rec.Content
	if proj.truncate > 0 && len(content) > proj.truncate {
		content = content[:proj.truncate]
	}

	w.Header().Set("Content-Type", rec.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}
