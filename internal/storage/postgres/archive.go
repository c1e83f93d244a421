// Package postgres archives finished games in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/hetman/internal/config"
)

// ApplicationName tags archive connections in pg_stat_activity.
const ApplicationName = "hetman-archive"

// Open connects to the archive database and returns a repository that owns the
// pool.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a repository whose database answered a ping, or a
// non-nil error. The caller must Close the repository.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*ResultRepository, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening archive pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging archive database: %w", err)
	}
	return &ResultRepository{db: pool, owned: true}, nil
}

// poolConfig maps cfg onto a pgx pool configuration. Zero limits keep the pgx
// defaults.
func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing archive dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	return poolCfg, nil
}

// Ping reports whether the archive database answers within timeout.
func (r *ResultRepository) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.db.Ping(ctx)
}

// Close releases the pool when the repository opened it. A repository built
// with NewResultRepository leaves its pool to the caller.
func (r *ResultRepository) Close() {
	if r.owned {
		r.db.Close()
	}
}
