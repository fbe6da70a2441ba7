package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Backends.DuckDB.Enabled)
	assert.Equal(t, ":memory:", cfg.Backends.DuckDB.Path)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.BaseBackoff)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestValidate_NoBackends(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backends.DuckDB.Enabled = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one backend")
}

func TestValidate_ClickHouseNeedsAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backends.ClickHouse.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address")
}

func TestValidate_PostgresNeedsDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backends.Postgres.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN")
}

func TestValidate_JitterBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry.JitterFraction = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jitter")
}

func TestValidate_FillsDefaults(t *testing.T) {
	cfg := &Config{
		Backends: BackendsConfig{
			DuckDB: DuckDBConfig{Enabled: true},
		},
	}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Minute, cfg.QueryTimeout)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 16, cfg.ConnectionPool.MaxOpenConnections)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadFromViper_FlagOverrides(t *testing.T) {
	v := viper.New()
	v.Set("log-level", "debug")
	v.Set("duckdb-path", "/tmp/test.db")
	v.Set("retry-attempts", 5)
	v.Set("postgres-dsn", "postgres://localhost/test")

	cfg, err := LoadFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/test.db", cfg.Backends.DuckDB.Path)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.Backends.Postgres.Enabled)
	assert.Equal(t, "postgres://localhost/test", cfg.Backends.Postgres.DSN)
}

func TestLoadFromViper_MissingConfigFile(t *testing.T) {
	v := viper.New()
	v.Set("config", "/nonexistent/volley.yaml")

	_, err := LoadFromViper(v)
	require.Error(t, err)
}
