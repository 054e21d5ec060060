package blobstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX abstracts pgxpool.Pool for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PostgresStore 把集合映射为一张表：cache_key TEXT 主键 + payload BYTEA。
type PostgresStore struct {
	db    DBTX
	table string
	pool  *pgxpool.Pool
}

// NewPostgresStore 建立连接池；连通性与建表都延迟到 Open。
func NewPostgresStore(ctx context.Context, dsn string, maxConns int32, names Names) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	store, err := newPostgresStoreWithDB(pool, names)
	if err != nil {
		pool.Close()
		return nil, err
	}
	store.pool = pool
	return store, nil
}

func newPostgresStoreWithDB(db DBTX, names Names) (*PostgresStore, error) {
	if err := names.validate(); err != nil {
		return nil, err
	}
	if !identPattern.MatchString(names.Collection) {
		return nil, fmt.Errorf("invalid collection identifier: %s", names.Collection)
	}
	return &PostgresStore{db: db, table: names.Collection}, nil
}

func (s *PostgresStore) Backend() string { return "postgres" }

// Open 以 CREATE TABLE IF NOT EXISTS 保证集合存在，已有数据原样保留。
func (s *PostgresStore) Open(ctx context.Context) (Collection, error) {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			cache_key TEXT PRIMARY KEY,
			payload   BYTEA NOT NULL,
			stored_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, pgx.Identifier{s.table}.Sanitize())

	if _, err := s.db.Exec(ctx, query); err != nil {
		return nil, fmt.Errorf("%w: ensure table: %v", ErrStoreUnavailable, err)
	}
	return s, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE cache_key = $1`, pgx.Identifier{s.table}.Sanitize())

	var payload []byte
	if err := s.db.QueryRow(ctx, query, key).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return payload, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, blob []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (cache_key, payload, stored_at)
		VALUES ($1, $2, now())
		ON CONFLICT (cache_key) DO UPDATE SET payload = EXCLUDED.payload, stored_at = EXCLUDED.stored_at
	`, pgx.Identifier{s.table}.Sanitize())

	if _, err := s.db.Exec(ctx, query, key, blob); err != nil {
		return fmt.Errorf("failed to put blob: %w", err)
	}
	return nil
}

// Close 释放连接池；通过 DBTX 注入时为空操作。
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
