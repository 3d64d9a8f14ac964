package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/webpods-go/webpods/internal/apperrors"
)

type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeError maps err to its HTTP status and a JSON error body
// (SPEC_FULL.md §7). Fatal kinds are logged with the underlying cause;
// recoverable kinds (bad input, permission denials, not-found) are not,
// to keep logs free of expected client noise.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.SugaredLogger, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Wrap(apperrors.KindInternal, "unexpected error", err)
	}

	if !appErr.Recoverable() && log != nil {
		log.Errorw("request failed", "kind", appErr.Kind, "path", r.URL.Path, "error", appErr.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status())
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:   string(appErr.Kind),
		Message: appErr.Message,
		Details: appErr.Details,
	})
}
