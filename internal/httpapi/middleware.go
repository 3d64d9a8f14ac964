package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/webpods-go/webpods/internal/apperrors"
	"github.com/webpods-go/webpods/internal/types"
)

// requestLogger attaches a request-scoped logger carrying a uuid
// request ID, method, and path, per SPEC_FULL.md §2.1's ambient
// logging section.
func (srv *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		start := time.Now()
		log := srv.log.With("requestID", requestID, "method", r.Method, "path", r.URL.Path)
		ctx := withLogger(r.Context(), log)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		log.Infow("request completed",
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}

// recoverer turns a panic in a downstream handler into a 500 response
// instead of crashing the process, logging the panic value.
func (srv *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				loggerFrom(r.Context()).Errorw("panic recovered", "value", rec)
				writeError(w, r, srv.log, apperrors.New(apperrors.KindInternal, "internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// podExtraction derives the pod name from the request Host, the
// leading subdomain of the configured host (SPEC_FULL.md §6.1): for
// host "alice.webpods.example", pod is "alice". Requests to the bare
// configured host carry no pod (management/auth surface, out of core
// scope) and are rejected with POD_NOT_FOUND by downstream handlers.
func (srv *Server) podExtraction(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}

		pod := ""
		suffix := "." + srv.mainHost
		if strings.HasSuffix(host, suffix) {
			pod = strings.TrimSuffix(host, suffix)
		}

		ctx := withPodName(r.Context(), pod)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authMiddleware implements SPEC_FULL.md §4.12: parse an optional
// Authorization: Bearer <jwt>, verifying signature and expiry only.
// Requests without a token proceed as anonymous (user_id=""), subject
// to the same permission evaluation as any other caller, so public
// streams stay readable. A token scoped to a different pod than the
// one this request addresses fails POD_MISMATCH.
func (srv *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		userID, podScope := "", ""

		if strings.HasPrefix(authHeader, "Bearer ") {
			raw := strings.TrimPrefix(authHeader, "Bearer ")
			claims := jwt.MapClaims{}
			_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				return []byte(srv.jwtSecret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil {
				writeError(w, r, srv.log, apperrors.Wrap(apperrors.KindUnauthorized, "invalid credential", err))
				return
			}
			if sub, ok := claims["sub"].(string); ok {
				userID = sub
			}
			if scope, ok := claims["pod_scope"].(string); ok {
				podScope = scope
			}
		}

		if podScope != "" && podScope != podNameFrom(r.Context()) {
			writeError(w, r, srv.log, apperrors.New(apperrors.KindPodMismatch, "token is not scoped to this pod"))
			return
		}

		ctx := withUserID(r.Context(), userID, podScope)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit infers the action from the HTTP method and applies the
// configured limiter (SPEC_FULL.md §4.11). Identity is the user ID in
// the request context when present, otherwise the remote address, so
// anonymous callers are still bounded. Router installs this middleware
// ahead of authMiddleware, so there every caller is keyed by remote
// address.
func (srv *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if srv.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		action := types.ActionRead
		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodDelete {
			action = types.ActionWrite
		}

		identifier := userIDFrom(r.Context())
		if identifier == "" {
			identifier = r.RemoteAddr
		}

		result, err := srv.limiter.CheckAndIncrement(r.Context(), identifier, action)
		if err != nil {
			writeError(w, r, srv.log, err)
			return
		}
		if !result.Allowed {
			writeError(w, r, srv.log, apperrors.New(apperrors.KindRateLimited, "rate limit exceeded").
				WithDetails(map[string]any{"resetAt": result.ResetAt}))
			return
		}
		next.ServeHTTP(w, r)
	})
}
