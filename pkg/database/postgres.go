package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the pgxpool pool backing the sign catalog.
type DB struct {
	*pgxpool.Pool
}

// Config holds pool settings for the catalog database.
type Config struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// StatementTimeout bounds every catalog query server-side. The resolver
	// issues several lookups per request, so one slow scan must not stall it.
	StatementTimeout time.Duration
	ApplicationName  string
}

const (
	defaultMaxConns         = 25
	defaultMaxConnLifetime  = time.Hour
	defaultMaxConnIdleTime  = 30 * time.Minute
	defaultStatementTimeout = 5 * time.Second
	defaultApplicationName  = "sign-engine"
)

// NewConnection creates the pool and verifies it with a ping.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = orDefault(cfg.MaxConnections, defaultMaxConns)
	poolConfig.MaxConnLifetime = orDefault(cfg.MaxConnLifetime, defaultMaxConnLifetime)
	poolConfig.MaxConnIdleTime = orDefault(cfg.MaxConnIdleTime, defaultMaxConnIdleTime)

	params := poolConfig.ConnConfig.RuntimeParams
	params["application_name"] = orDefault(cfg.ApplicationName, defaultApplicationName)
	params["statement_timeout"] = strconv.FormatInt(orDefault(cfg.StatementTimeout, defaultStatementTimeout).Milliseconds(), 10)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
