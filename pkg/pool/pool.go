// Package pool provides database connection pooling for backend connectors.
package pool

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	pkgerrors "github.com/TFMV/volley/pkg/errors"
)

// Config represents pool configuration.
type Config struct {
	DriverName         string        `json:"driver_name"`
	DSN                string        `json:"dsn"`
	MaxOpenConnections int           `json:"max_open_connections"`
	MaxIdleConnections int           `json:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `json:"conn_max_idle_time"`
	ConnectionTimeout  time.Duration `json:"connection_timeout"`
}

// applyDefaults fills zero values with sane defaults.
func (c *Config) applyDefaults() {
	if c.MaxOpenConnections <= 0 {
		c.MaxOpenConnections = 16
	}
	if c.MaxIdleConnections <= 0 {
		c.MaxIdleConnections = 4
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 15 * time.Minute
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 10 * time.Second
	}
}

// Stats represents connection pool statistics.
type Stats struct {
	OpenConnections   int           `json:"open_connections"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	Acquisitions      int64         `json:"acquisitions"`
	AcquisitionErrors int64         `json:"acquisition_errors"`
	LastHealthCheck   time.Time     `json:"last_health_check"`
	HealthCheckStatus string        `json:"health_check_status"`
}

// ConnectionPool hands out scoped connections for backend calls.
type ConnectionPool interface {
	// Acquire returns a dedicated connection. The caller must Close it on
	// every exit path.
	Acquire(ctx context.Context) (*sql.Conn, error)
	// HealthCheck verifies the underlying database is reachable.
	HealthCheck(ctx context.Context) error
	// Stats returns pool statistics.
	Stats() Stats
	// Close closes the pool.
	Close() error
}

// connectionPool implements ConnectionPool over database/sql.
type connectionPool struct {
	db     *sql.DB
	cfg    Config
	log    zerolog.Logger
	closed atomic.Bool

	acquisitions      atomic.Int64
	acquisitionErrors atomic.Int64
	lastHealthCheck   atomic.Int64 // unix nanos
	lastHealthStatus  atomic.Value // string
}

// New creates a connection pool for the given driver and DSN.
func New(cfg Config, logger zerolog.Logger) (ConnectionPool, error) {
	cfg.applyDefaults()

	db, err := sql.Open(cfg.DriverName, cfg.DSN)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.CodeConnectionFailed, "open %s database", cfg.DriverName)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	p := &connectionPool{
		db:  db,
		cfg: cfg,
		log: logger.With().Str("component", "pool").Str("driver", cfg.DriverName).Logger(),
	}
	p.lastHealthStatus.Store("unknown")
	return p, nil
}

// NewFromDB wraps an existing *sql.DB. Used by tests and by connectors whose
// driver requires out-of-band connector construction.
func NewFromDB(db *sql.DB, cfg Config, logger zerolog.Logger) ConnectionPool {
	cfg.applyDefaults()
	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	p := &connectionPool{
		db:  db,
		cfg: cfg,
		log: logger.With().Str("component", "pool").Str("driver", cfg.DriverName).Logger(),
	}
	p.lastHealthStatus.Store("unknown")
	return p
}

func (p *connectionPool) Acquire(ctx context.Context) (*sql.Conn, error) {
	if p.closed.Load() {
		return nil, pkgerrors.New(pkgerrors.CodeUnavailable, "connection pool is closed")
	}

	acquireCtx := ctx
	if p.cfg.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.cfg.ConnectionTimeout)
		defer cancel()
	}

	start := time.Now()
	conn, err := p.db.Conn(acquireCtx)
	if err != nil {
		p.acquisitionErrors.Add(1)
		p.log.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("connection acquisition failed")
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "acquire connection")
	}
	p.acquisitions.Add(1)
	return conn, nil
}

func (p *connectionPool) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	p.lastHealthCheck.Store(time.Now().UnixNano())
	if err != nil {
		p.lastHealthStatus.Store("unhealthy")
		return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "health check")
	}
	p.lastHealthStatus.Store("healthy")
	return nil
}

func (p *connectionPool) Stats() Stats {
	dbStats := p.db.Stats()
	status, _ := p.lastHealthStatus.Load().(string)
	return Stats{
		OpenConnections:   dbStats.OpenConnections,
		InUse:             dbStats.InUse,
		Idle:              dbStats.Idle,
		WaitCount:         dbStats.WaitCount,
		WaitDuration:      dbStats.WaitDuration,
		Acquisitions:      p.acquisitions.Load(),
		AcquisitionErrors: p.acquisitionErrors.Load(),
		LastHealthCheck:   time.Unix(0, p.lastHealthCheck.Load()),
		HealthCheckStatus: status,
	}
}

func (p *connectionPool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.log.Debug().Msg("closing connection pool")
	return p.db.Close()
}
