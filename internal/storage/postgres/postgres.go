// Package postgres implements storage.Store against PostgreSQL with
// jackc/pgx/v5, adapted from the teacher's internal/storage/sqlite
// package: same Storage/Transaction split, same "query helper per
// concern" file layout (pods.go, streams.go, records.go, ratelimit.go),
// different engine underneath (SPEC_FULL.md §2.2 adaptation note).
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/webpods-go/webpods/internal/storage"
)

// Store is the PostgreSQL-backed storage.Store implementation.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, runs pending migrations, and returns a ready
// Store. Migrations run over a short-lived database/sql handle because
// goose drives migrations through that interface; request traffic uses
// the pgx pool exclusively.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()
	if err := Migrate(sqlDB); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// OpenForTest opens dsn exactly as Open does and also returns a cleanup
// func that closes the Store. It does not read TESTDB_DSN or skip.
func OpenForTest(ctx context.Context, dsn string) (*Store, func(), error) {
	st, err := Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { _ = st.Close() }, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var _ storage.Store = (*Store)(nil)
