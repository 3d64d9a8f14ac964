// Package permissions implements the access-control evaluation engine
// of SPEC_FULL.md §4.6: owner resolution, creator/public/private rules,
// permission-stream lookup, and bounded ancestor inheritance.
package permissions

import (
	"context"
	"encoding/json"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/storage"
	"github.com/webpods-go/webpods/internal/types"
)

// Action is read or write, the two actions the engine decides.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// maxAncestorHops bounds the parent_id walk in Evaluate so a
// misconfigured or cyclic permission-stream chain cannot loop forever
// (SPEC_FULL.md §9 edge cases).
const maxAncestorHops = 8

const ownerStreamPath = ".config/owner"

// Engine evaluates access_permission rules against a storage.Store.
type Engine struct {
	store storage.Store
}

func New(store storage.Store) *Engine {
	return &Engine{store: store}
}

// ResolveOwner returns podName's current owner: the "userId" field of
// the JSON content of the latest record named "owner" in /.config/owner
// (the raw content when it is not JSON), or "" if that stream has no
// such record yet (SPEC_FULL.md §3 "current owner").
func (e *Engine) ResolveOwner(ctx context.Context, podName string) (string, error) {
	ownerStream, err := e.store.GetStreamByPath(ctx, podName, ownerStreamPath)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	rec, err := e.store.GetLatestRecordByName(ctx, ownerStream.ID, "owner")
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	var body struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(rec.Content, &body); err != nil {
		return string(rec.Content), nil
	}
	return body.UserID, nil
}

// Evaluate decides whether userID may perform action on stream,
// following the ordered rules of SPEC_FULL.md §4.6.
func (e *Engine) Evaluate(ctx context.Context, stream *types.Stream, userID string, action Action) (bool, error) {
	owner, err := e.ResolveOwner(ctx, stream.PodName)
	if err != nil {
		return false, err
	}

	if owner != "" && userID == owner {
		return true, nil
	}
	if userID == stream.UserID && (owner == "" || owner == userID) {
		return true, nil
	}

	current := stream
	for hop := 0; hop <= maxAncestorHops; hop++ {
		decided, allow, err := e.evaluateOwnRule(ctx, current, userID, action)
		if err != nil {
			return false, err
		}
		if decided {
			return allow, nil
		}
		if current.ParentID == nil {
			break
		}
		parent, err := e.store.GetStream(ctx, *current.ParentID)
		if err != nil {
			return false, err
		}
		current = parent
	}
	return false, nil
}

// evaluateOwnRule applies steps 3-5 of SPEC_FULL.md §4.6 to a single
// stream's own access_permission, without walking ancestors.
func (e *Engine) evaluateOwnRule(ctx context.Context, stream *types.Stream, userID string, action Action) (decided, allow bool, err error) {
	switch {
	case stream.AccessPermission == "public":
		if action == ActionRead {
			return true, true, nil
		}
		return true, userID != "", nil

	case stream.AccessPermission == "private":
		return true, userID == stream.UserID, nil

	case len(stream.AccessPermission) > 0 && stream.AccessPermission[0] == '/':
		allowed, err := e.checkPermissionStream(ctx, stream.PodName, stream.AccessPermission, userID, action)
		if err != nil {
			return false, false, err
		}
		return true, allowed, nil

	default:
		return false, false, nil
	}
}

// checkPermissionStream looks up the grant record for userID in the
// permission stream at path and allows iff its JSON body sets action =
// true (SPEC_FULL.md §4.6 rule 5). The grant is the record named
// exactly userID if one exists; otherwise it's the latest record whose
// JSON content's "id" or "userId" field equals userID.
func (e *Engine) checkPermissionStream(ctx context.Context, podName, path, userID string, action Action) (bool, error) {
	stream, err := e.store.GetStreamByPath(ctx, podName, trimLeadingSlash(path))
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}

	rec, err := e.store.GetLatestRecordByName(ctx, stream.ID, userID)
	if err != nil {
		if !isNotFound(err) {
			return false, err
		}
		rec, err = e.findGrantByUserField(ctx, stream.ID, userID)
		if err != nil {
			return false, err
		}
		if rec == nil {
			return false, nil
		}
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Content, &body); err != nil {
		return false, nil
	}
	v, ok := body[string(action)]
	if !ok {
		return false, nil
	}
	allowed, _ := v.(bool)
	return allowed, nil
}

// maxPermissionGrantScan bounds the fallback content scan in
// findGrantByUserField so a very large permission stream cannot make a
// single access check unbounded.
const maxPermissionGrantScan = 10000

// findGrantByUserField scans the unique (latest-per-name) records of a
// permission stream for the highest-index one whose content's "id" or
// "userId" field equals userID (SPEC_FULL.md §4.6 rule 5, alternative
// match), returning nil if none matches.
func (e *Engine) findGrantByUserField(ctx context.Context, streamID int64, userID string) (*types.Record, error) {
	result, err := e.store.ListRecords(ctx, streamID, storage.ListOptions{Limit: maxPermissionGrantScan, Unique: true})
	if err != nil {
		return nil, err
	}
	var best *types.Record
	for _, rec := range result.Records {
		var body map[string]any
		if json.Unmarshal(rec.Content, &body) != nil {
			continue
		}
		if !grantMatchesUser(body, userID) {
			continue
		}
		if best == nil || rec.Index > best.Index {
			best = rec
		}
	}
	return best, nil
}

func grantMatchesUser(body map[string]any, userID string) bool {
	for _, key := range [...]string{"id", "userId"} {
		if v, ok := body[key]; ok {
			if s, ok := v.(string); ok && s == userID {
				return true
			}
		}
	}
	return false
}

func trimLeadingSlash(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path[1:]
	}
	return path
}

func isNotFound(err error) bool {
	switch apperrors.KindOf(err) {
	case apperrors.KindStreamNotFound, apperrors.KindRecordNotFound, apperrors.KindPodNotFound:
		return true
	default:
		return false
	}
}
