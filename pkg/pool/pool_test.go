package pool

import (
	"context"
	"testing"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) ConnectionPool {
	t.Helper()
	p, err := New(Config{
		DriverName:         "duckdb",
		DSN:                "",
		MaxOpenConnections: 4,
		MaxIdleConnections: 2,
		ConnectionTimeout:  5 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestAcquireAndRelease(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	conn, err := p.Acquire(ctx)
	require.NoError(t, err)

	var one int
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
	require.NoError(t, conn.Close())

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Acquisitions)
	assert.Equal(t, int64(0), stats.AcquisitionErrors)
}

func TestHealthCheck(t *testing.T) {
	p := newTestPool(t)

	require.NoError(t, p.HealthCheck(context.Background()))
	stats := p.Stats()
	assert.Equal(t, "healthy", stats.HealthCheckStatus)
	assert.False(t, stats.LastHealthCheck.IsZero())
}

func TestAcquireAfterClose(t *testing.T) {
	p := newTestPool(t)
	require.NoError(t, p.Close())

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestConcurrentAcquire(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			conn, err := p.Acquire(ctx)
			if err != nil {
				done <- err
				return
			}
			var n int
			err = conn.QueryRowContext(ctx, "SELECT 2").Scan(&n)
			_ = conn.Close()
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}

	assert.Equal(t, int64(8), p.Stats().Acquisitions)
}

func TestDefaultsApplied(t *testing.T) {
	cfg := Config{DriverName: "duckdb"}
	cfg.applyDefaults()
	assert.Equal(t, 16, cfg.MaxOpenConnections)
	assert.Equal(t, 4, cfg.MaxIdleConnections)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, 10*time.Second, cfg.ConnectionTimeout)
}
