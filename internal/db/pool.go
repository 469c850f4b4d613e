package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"floodline/internal/config"
)

// NewPool creates a pgx connection pool with the configured tuning and
// verifies connectivity before returning.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// HealthProbe checks database connectivity for the /health endpoint.
type HealthProbe struct {
	pool *pgxpool.Pool
}

// NewHealthProbe creates a database health probe.
func NewHealthProbe(pool *pgxpool.Pool) *HealthProbe {
	return &HealthProbe{pool: pool}
}

// Name identifies the probe in the health response.
func (p *HealthProbe) Name() string { return "database" }

// Check pings the pool.
func (p *HealthProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
