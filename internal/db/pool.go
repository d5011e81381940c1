// Package db builds the pgxpool.Pool the audit sink persists moderation
// events through, grounded on the teacher's internal/db pool tuning but
// driven by internal/config instead of reading the environment directly.
package db

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/nyxikitty/mpp-server/internal/config"
)

// NewPool creates a connection pool sized and tuned by cfg, logging its
// setup and lifecycle through logger instead of the standard logger.
func NewPool(ctx context.Context, connString string, cfg config.DBPool, logger *zerolog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolConfig.MaxConnLifetimeJitter = cfg.MaxConnLifetimeJitter

	if poolConfig.MinConns > poolConfig.MaxConns {
		logger.Warn().
			Int32("min_conns", poolConfig.MinConns).
			Int32("max_conns", poolConfig.MaxConns).
			Msg("db: min conns exceeds max conns, clamping min to max")
		poolConfig.MinConns = poolConfig.MaxConns
	}

	poolConfig.ConnConfig.RuntimeParams["statement_cache_mode"] = "prepare"
	poolConfig.ConnConfig.RuntimeParams["statement_cache_size"] = strconv.Itoa(cfg.StatementCacheSize)

	logger.Info().
		Int32("min_conns", poolConfig.MinConns).
		Int32("max_conns", poolConfig.MaxConns).
		Dur("max_lifetime", poolConfig.MaxConnLifetime).
		Dur("max_idle", poolConfig.MaxConnIdleTime).
		Msg("db: pool configured")

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info().Msg("db: connection pool created")
	return pool, nil
}

// ClosePool gracefully closes the database connection pool.
func ClosePool(pool *pgxpool.Pool, logger *zerolog.Logger) {
	if pool == nil {
		return
	}
	pool.Close()
	logger.Info().Msg("db: connection pool closed")
}
