// Package postgres provides a relational backend connector backed by
// PostgreSQL via pgx.
package postgres

import (
	"context"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/TFMV/volley/pkg/backends"
	"github.com/TFMV/volley/pkg/errors"
	"github.com/TFMV/volley/pkg/models"
	"github.com/TFMV/volley/pkg/pool"
)

// Connector executes queries against a PostgreSQL database.
type Connector struct {
	id   models.BackendID
	pool pool.ConnectionPool
	log  zerolog.Logger
}

// Config holds PostgreSQL connector settings.
type Config struct {
	// DSN is a keyword/value or URL connection string understood by pgx.
	DSN  string
	Pool pool.Config
}

// New opens a PostgreSQL-backed connector.
func New(cfg Config, logger zerolog.Logger) (*Connector, error) {
	poolCfg := cfg.Pool
	poolCfg.DriverName = "pgx"
	poolCfg.DSN = cfg.DSN

	p, err := pool.New(poolCfg, logger)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConnectionFailed, "postgres pool")
	}

	return &Connector{
		id:   models.BackendPostgres,
		pool: p,
		log:  logger.With().Str("backend", string(models.BackendPostgres)).Logger(),
	}, nil
}

// ID returns the backend identity.
func (c *Connector) ID() models.BackendID { return c.id }

// Execute runs the query over a scoped connection.
func (c *Connector) Execute(ctx context.Context, query string) models.Outcome {
	return backends.ExecuteSQL(ctx, c.pool, c.id, query, c.log)
}

// HealthCheck verifies the database is reachable.
func (c *Connector) HealthCheck(ctx context.Context) error {
	return c.pool.HealthCheck(ctx)
}

// Stats returns pool statistics.
func (c *Connector) Stats() pool.Stats { return c.pool.Stats() }

// Close releases the pool.
func (c *Connector) Close() error { return c.pool.Close() }
