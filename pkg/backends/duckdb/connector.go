// Package duckdb provides the relational backend connector backed by DuckDB.
package duckdb

import (
	"context"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/rs/zerolog"

	"github.com/TFMV/volley/pkg/backends"
	"github.com/TFMV/volley/pkg/errors"
	"github.com/TFMV/volley/pkg/models"
	"github.com/TFMV/volley/pkg/pool"
)

// Connector executes queries against a DuckDB database.
type Connector struct {
	id   models.BackendID
	pool pool.ConnectionPool
	log  zerolog.Logger
}

// Config holds DuckDB connector settings.
type Config struct {
	// Path is the database file, or ":memory:" / empty for in-memory.
	Path string
	Pool pool.Config
}

// New opens a DuckDB-backed connector.
func New(cfg Config, logger zerolog.Logger) (*Connector, error) {
	poolCfg := cfg.Pool
	poolCfg.DriverName = "duckdb"
	poolCfg.DSN = cfg.Path
	if poolCfg.DSN == ":memory:" {
		poolCfg.DSN = ""
	}

	p, err := pool.New(poolCfg, logger)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConnectionFailed, "duckdb pool")
	}

	return &Connector{
		id:   models.BackendDuckDB,
		pool: p,
		log:  logger.With().Str("backend", string(models.BackendDuckDB)).Logger(),
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
