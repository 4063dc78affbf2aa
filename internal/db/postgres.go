package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pingTimeout = 5 * time.Second

// PoolOption adjusts the pgx pool before it is opened.
type PoolOption func(*pgxpool.Config)

// WithMaxConns caps the pool. Each in-flight booking attempt holds at most
// one connection at a time, so callers size this from the worker count.
func WithMaxConns(n int32) PoolOption {
	return func(cfg *pgxpool.Config) {
		if n > 0 {
			cfg.MaxConns = n
		}
	}
}

// WithApplicationName labels the sessions in pg_stat_activity.
func WithApplicationName(name string) PoolOption {
	return func(cfg *pgxpool.Config) {
		if name != "" {
			cfg.ConnConfig.RuntimeParams["application_name"] = name
		}
	}
}

// PoolSizeFor returns a pool size that covers concurrent booking attempts
// plus headroom for the HTTP API.
func PoolSizeFor(workers int) int32 {
	if workers < 1 {
		workers = 1
	}
	return int32(workers + 5)
}

// ConnectPostgres opens the status store pool and verifies connectivity
// before returning.
func ConnectPostgres(ctx context.Context, dsn string, opts ...PoolOption) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MaxConns = PoolSizeFor(0)
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute
	for _, opt := range opts {
		opt(cfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}
