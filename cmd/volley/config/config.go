// Package config provides configuration structures for the dispatch engine.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the full dispatcher configuration.
type Config struct {
	LogLevel     string        `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	QueryTimeout time.Duration `yaml:"query_timeout" json:"query_timeout" mapstructure:"query_timeout"`

	// Backend configuration
	Backends BackendsConfig `yaml:"backends" json:"backends" mapstructure:"backends"`

	// Retry configuration
	Retry RetryConfig `yaml:"retry" json:"retry" mapstructure:"retry"`

	// Connection pool configuration shared by all backends
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool" json:"connection_pool" mapstructure:"connection_pool"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
}

// BackendsConfig lists the configured backends.
type BackendsConfig struct {
	DuckDB     DuckDBConfig     `yaml:"duckdb" json:"duckdb" mapstructure:"duckdb"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse" json:"clickhouse" mapstructure:"clickhouse"`
	Postgres   PostgresConfig   `yaml:"postgres" json:"postgres" mapstructure:"postgres"`
}

// DuckDBConfig represents DuckDB backend configuration.
type DuckDBConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" json:"path" mapstructure:"path"`
}

// ClickHouseConfig represents ClickHouse backend configuration.
type ClickHouseConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Addr        []string      `yaml:"addr" json:"addr" mapstructure:"addr"`
	Database    string        `yaml:"database" json:"database" mapstructure:"database"`
	Username    string        `yaml:"username" json:"username" mapstructure:"username"`
	Password    string        `yaml:"password" json:"password" mapstructure:"password"`
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout" mapstructure:"dial_timeout"`
}

// PostgresConfig represents PostgreSQL backend configuration.
type PostgresConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	DSN     string `yaml:"dsn" json:"dsn" mapstructure:"dsn"`
}

// RetryConfig represents retry policy configuration.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" json:"max_attempts" mapstructure:"max_attempts"`
	BaseBackoff    time.Duration `yaml:"base_backoff" json:"base_backoff" mapstructure:"base_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" json:"max_backoff" mapstructure:"max_backoff"`
	JitterFraction float64       `yaml:"jitter_fraction" json:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ConnectionPoolConfig represents connection pool configuration.
type ConnectionPoolConfig struct {
	MaxOpenConnections int           `yaml:"max_open_connections" json:"max_open_connections" mapstructure:"max_open_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections" json:"max_idle_connections" mapstructure:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	ConnectionTimeout  time.Duration `yaml:"connection_timeout" json:"connection_timeout" mapstructure:"connection_timeout"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Address string `yaml:"address" json:"address" mapstructure:"address"`
	Path    string `yaml:"path" json:"path" mapstructure:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:     "info",
		QueryTimeout: 5 * time.Minute,
		Backends: BackendsConfig{
			DuckDB: DuckDBConfig{
				Enabled: true,
				Path:    ":memory:",
			},
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			BaseBackoff:    100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			JitterFraction: 0.2,
		},
		ConnectionPool: ConnectionPoolConfig{
			MaxOpenConnections: 16,
			MaxIdleConnections: 4,
			ConnMaxLifetime:    time.Hour,
			ConnMaxIdleTime:    15 * time.Minute,
			ConnectionTimeout:  10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
			Path:    "/metrics",
		},
	}
}

// Validate validates the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 5 * time.Minute
	}

	if !c.Backends.DuckDB.Enabled && !c.Backends.ClickHouse.Enabled && !c.Backends.Postgres.Enabled {
		return fmt.Errorf("at least one backend must be enabled")
	}
	if c.Backends.ClickHouse.Enabled && len(c.Backends.ClickHouse.Addr) == 0 {
		return fmt.Errorf("clickhouse backend requires at least one address")
	}
	if c.Backends.Postgres.Enabled && c.Backends.Postgres.DSN == "" {
		return fmt.Errorf("postgres backend requires a DSN")
	}

	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseBackoff <= 0 {
		c.Retry.BaseBackoff = 100 * time.Millisecond
	}
	if c.Retry.MaxBackoff <= 0 {
		c.Retry.MaxBackoff = 2 * time.Second
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
		return fmt.Errorf("jitter fraction must be within [0, 1]")
	}

	if c.ConnectionPool.MaxOpenConnections <= 0 {
		c.ConnectionPool.MaxOpenConnections = 16
	}
	if c.ConnectionPool.MaxIdleConnections <= 0 {
		c.ConnectionPool.MaxIdleConnections = 4
	}
	if c.ConnectionPool.ConnMaxLifetime <= 0 {
		c.ConnectionPool.ConnMaxLifetime = time.Hour
	}
	if c.ConnectionPool.ConnMaxIdleTime <= 0 {
		c.ConnectionPool.ConnMaxIdleTime = 15 * time.Minute
	}
	if c.ConnectionPool.ConnectionTimeout <= 0 {
		c.ConnectionPool.ConnectionTimeout = 10 * time.Second
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics address is required when metrics are enabled")
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	return nil
}

// LoadFromViper builds a Config from viper-bound flags, environment, and an
// optional config file.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Flat flags override nested config keys.
	if v.IsSet("log-level") {
		cfg.LogLevel = v.GetString("log-level")
	}
	if v.IsSet("query-timeout") {
		cfg.QueryTimeout = v.GetDuration("query-timeout")
	}
	if v.IsSet("duckdb-path") {
		cfg.Backends.DuckDB.Path = v.GetString("duckdb-path")
	}
	if v.IsSet("clickhouse-addr") {
		cfg.Backends.ClickHouse.Addr = v.GetStringSlice("clickhouse-addr")
		cfg.Backends.ClickHouse.Enabled = len(cfg.Backends.ClickHouse.Addr) > 0
	}
	if v.IsSet("postgres-dsn") {
		cfg.Backends.Postgres.DSN = v.GetString("postgres-dsn")
		cfg.Backends.Postgres.Enabled = cfg.Backends.Postgres.DSN != ""
	}
	if v.IsSet("retry-attempts") {
		cfg.Retry.MaxAttempts = v.GetInt("retry-attempts")
	}
	if v.IsSet("metrics") {
		cfg.Metrics.Enabled = v.GetBool("metrics")
	}
	if v.IsSet("metrics-address") {
		cfg.Metrics.Address = v.GetString("metrics-address")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
