package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/webpods-go/webpods/internal/cache"
	"github.com/webpods-go/webpods/internal/config"
	"github.com/webpods-go/webpods/internal/domain/permissions"
	"github.com/webpods-go/webpods/internal/domain/pods"
	"github.com/webpods-go/webpods/internal/domain/records"
	"github.com/webpods-go/webpods/internal/domain/routing"
	"github.com/webpods-go/webpods/internal/domain/schema"
	"github.com/webpods-go/webpods/internal/domain/streams"
	"github.com/webpods-go/webpods/internal/httpapi"
	"github.com/webpods-go/webpods/internal/logging"
	"github.com/webpods-go/webpods/internal/pathresolver"
	"github.com/webpods-go/webpods/internal/ratelimit"
	"github.com/webpods-go/webpods/internal/storage/postgres"
	"github.com/webpods-go/webpods/internal/storageadapter"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := logging.New(logging.Config{
		Level:    config.GetString("log.level"),
		FilePath: config.GetString("log.file"),
		JSON:     config.GetBool("log.json"),
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := postgres.Open(ctx, config.GetString("database.dsn"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	c, closeCache, err := buildCache()
	if err != nil {
		return fmt.Errorf("build cache: %w", err)
	}
	defer closeCache()

	var adapter storageadapter.Adapter
	if backend := config.GetString("storage.backend"); backend == "filesystem" {
		adapter = storageadapter.NewFilesystemAdapter(config.GetString("storage.base-dir"))
	}

	limiter := buildLimiter(store)
	if pgLimiter, ok := limiter.(*ratelimit.PostgresLimiter); ok {
		go runRateLimitCleanup(ctx, pgLimiter, log)
	}

	podsSvc := pods.New(store, c)
	streamsSvc := streams.New(store)
	recordsSvc := records.New(store, adapter, c)
	permissionsEngine := permissions.New(store)
	routingResolver := routing.New(store, c)
	schemaValidator := schema.New(store)
	resolver := pathresolver.New(store)

	srv := httpapi.New(httpapi.Deps{
		Log:            log,
		MainHost:       config.GetString("server.host"),
		JWTSecret:      config.GetString("auth.jwt-secret"),
		Pods:           podsSvc,
		Streams:        streamsSvc,
		Records:        recordsSvc,
		Permissions:    permissionsEngine,
		Routing:        routingResolver,
		Schema:         schemaValidator,
		Resolver:       resolver,
		Limiter:        limiter,
		RequestTimeout: config.GetDuration("server.request-timeout"),
	})

	httpSrv := &http.Server{
		Addr:    config.GetString("server.addr"),
		Handler: srv.Router(),
	}

	config.WatchConfig(func() {
		log.Infow("configuration reloaded")
	})

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", httpSrv.Addr, "host", config.GetString("server.host"))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	case sig := <-sigCh:
		log.Infow("received signal, shutting down gracefully", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func buildCache() (cache.Cache, func(), error) {
	maxBytes := config.GetInt64("cache.max-bytes-per-pool")
	defaultTTL := config.GetDuration("cache.default-ttl")

	switch config.GetString("cache.backend") {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: config.GetString("cache.redis-addr")})
		rc := cache.NewRedisCache(client)
		return rc, func() { _ = rc.Close() }, nil
	default:
		mc := cache.NewMemoryCache(maxBytes, defaultTTL)
		return mc, func() {}, nil
	}
}

func buildLimiter(store *postgres.Store) ratelimit.Limiter {
	limits := ratelimit.Limits{
		Window:       config.GetDuration("ratelimit.window"),
		Reads:        int64(config.GetInt("ratelimit.reads")),
		Writes:       int64(config.GetInt("ratelimit.writes")),
		PodCreate:    int64(config.GetInt("ratelimit.pod-create")),
		StreamCreate: int64(config.GetInt("ratelimit.stream-create")),
	}
	if config.GetString("ratelimit.backend") == "postgres" {
		return ratelimit.NewPostgresLimiter(store, limits)
	}
	return ratelimit.NewMemoryLimiter(limits)
}

func runRateLimitCleanup(ctx context.Context, limiter *ratelimit.PostgresLimiter, log *zap.SugaredLogger) {
	interval := config.GetDuration("ratelimit.cleanup-interval")
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := limiter.Cleanup(ctx, time.Now().Add(-interval))
			if err != nil {
				log.Errorw("rate limit cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				log.Infow("rate limit cleanup", "removed", n)
			}
		}
	}
}
