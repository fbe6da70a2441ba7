// Package clickhouse provides the columnar warehouse connector backed by
// ClickHouse.
package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog"

	"github.com/TFMV/volley/pkg/backends"
	"github.com/TFMV/volley/pkg/models"
	"github.com/TFMV/volley/pkg/pool"
)

// Connector executes queries against a ClickHouse warehouse.
type Connector struct {
	id   models.BackendID
	pool pool.ConnectionPool
	log  zerolog.Logger
}

// Config holds ClickHouse connector settings.
type Config struct {
	Addr     []string
	Database string
	Username string
	Password string
	// DialTimeout bounds the initial connection handshake.
	DialTimeout time.Duration
	Pool        pool.Config
}

// New opens a ClickHouse-backed connector.
func New(cfg Config, logger zerolog.Logger) (*Connector, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}

	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: dialTimeout,
	})

	poolCfg := cfg.Pool
	poolCfg.DriverName = "clickhouse"
	p := pool.NewFromDB(db, poolCfg, logger)

	return &Connector{
		id:   models.BackendClickHouse,
		pool: p,
		log:  logger.With().Str("backend", string(models.BackendClickHouse)).Logger(),
	}, nil
}

// ID returns the backend identity.
func (c *Connector) ID() models.BackendID { return c.id }

// Execute runs the query over a scoped connection.
func (c *Connector) Execute(ctx context.Context, query string) models.Outcome {
	return backends.ExecuteSQL(ctx, c.pool, c.id, query, c.log)
}

// HealthCheck verifies the warehouse is reachable.
func (c *Connector) HealthCheck(ctx context.Context) error {
	return c.pool.HealthCheck(ctx)
}

// Stats returns pool statistics.
func (c *Connector) Stats() pool.Stats { return c.pool.Stats() }

// Close releases the pool.
func (c *Connector) Close() error { return c.pool.Close() }
