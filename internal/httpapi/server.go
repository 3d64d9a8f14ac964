// Package httpapi wires the HTTP pipeline of SPEC_FULL.md §4.13: a
// go-chi/chi router with request-ID, access logging, recovery, CORS,
// rate limiting, pod extraction, permission middleware, and link
// rewriting in front of the read/append/delete domain operations.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/webpods-go/webpods/internal/domain/permissions"
	"github.com/webpods-go/webpods/internal/domain/pods"
	"github.com/webpods-go/webpods/internal/domain/records"
	"github.com/webpods-go/webpods/internal/domain/routing"
	"github.com/webpods-go/webpods/internal/domain/schema"
	"github.com/webpods-go/webpods/internal/domain/streams"
	"github.com/webpods-go/webpods/internal/pathresolver"
	"github.com/webpods-go/webpods/internal/ratelimit"
)

// Server holds every dependency the HTTP pipeline dispatches into. It
// has no state of its own beyond configuration — all durable state
// lives in the injected store/cache/adapter.
type Server struct {
	log      *zap.SugaredLogger
	mainHost string
	jwtSecret string

	pods        *pods.Service
	streams     *streams.Service
	records     *records.Service
	permissions *permissions.Engine
	routing     *routing.Resolver
	schema      *schema.Validator
	resolver    *pathresolver.Resolver
	limiter     ratelimit.Limiter

	requestTimeout time.Duration
}

// Deps carries every collaborator New needs. Kept as a struct instead
// of a long parameter list since the set is large and still growing
// with administrative surfaces.
type Deps struct {
	Log            *zap.SugaredLogger
	MainHost       string
	JWTSecret      string
	Pods           *pods.Service
	Streams        *streams.Service
	Records        *records.Service
	Permissions    *permissions.Engine
	Routing        *routing.Resolver
	Schema         *schema.Validator
	Resolver       *pathresolver.Resolver
	Limiter        ratelimit.Limiter
	RequestTimeout time.Duration
}

func New(d Deps) *Server {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	return &Server{
		log:            d.Log,
		mainHost:       d.MainHost,
		jwtSecret:      d.JWTSecret,
		pods:           d.Pods,
		streams:        d.Streams,
		records:        d.Records,
		permissions:    d.Permissions,
		routing:        d.Routing,
		schema:         d.Schema,
		resolver:       d.Resolver,
		limiter:        d.Limiter,
		requestTimeout: d.RequestTimeout,
	}
}

// Router builds the chi.Mux implementing SPEC_FULL.md §4.13's
// middleware order: request-ID/access-log → recover → CORS → rate
// limiter → pod extraction → auth → link-rewrite (applied per-handler,
// since it rewrites the path the resolver sees) → handler.
func (srv *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(srv.requestLogger)
	r.Use(srv.recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Content-Type", "X-Record-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middlewareTimeout(srv.requestTimeout))
	r.Use(srv.rateLimit)
	r.Use(srv.podExtraction)
	r.Use(srv.authMiddleware)

	r.Get("/.config/api/streams", srv.handleListAllStreams)
	r.Post("/.config/schema/*", srv.handleWriteSchema)
	r.Patch("/*", srv.handlePatchStream)
	r.Get("/*", srv.handleRead)
	r.Post("/*", srv.handleAppend)
	r.Delete("/*", srv.handleDelete)
	r.Get("/", srv.handleReadRoot)
	r.Delete("/", srv.handleDeletePod)

	return r
}

func middlewareTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"error":"INTERNAL_ERROR","message":"request timed out"}`)
	}
}
