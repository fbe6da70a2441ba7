package middleware

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/volley/pkg/backends"
	"github.com/TFMV/volley/pkg/errors"
	"github.com/TFMV/volley/pkg/metrics"
	"github.com/TFMV/volley/pkg/models"
	"github.com/TFMV/volley/pkg/pool"
)

type fakeConnector struct {
	id          models.BackendID
	executeFunc func(ctx context.Context, query string) models.Outcome
}

func (f *fakeConnector) ID() models.BackendID { return f.id }
func (f *fakeConnector) Execute(ctx context.Context, query string) models.Outcome {
	return f.executeFunc(ctx, query)
}
func (f *fakeConnector) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeConnector) Close() error                          { return nil }

// recordingCollector captures counter increments for assertions.
type recordingCollector struct {
	metrics.NoOpCollector
	mu       sync.Mutex
	counters map[string]int
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{counters: make(map[string]int)}
}

func (r *recordingCollector) IncrementCounter(name string, labels ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := name
	for _, l := range labels {
		key += "|" + l
	}
	r.counters[key]++
}

func (r *recordingCollector) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[key]
}

func TestRecovery_ConvertsPanicToFailure(t *testing.T) {
	panicker := &fakeConnector{
		id: "clickhouse",
		executeFunc: func(ctx context.Context, query string) models.Outcome {
			panic("nil map write")
		},
	}

	wrapped := WithRecovery(panicker, zerolog.Nop())
	outcome := wrapped.Execute(context.Background(), "SELECT 1")

	require.False(t, outcome.OK())
	failure := outcome.Failure
	require.NotNil(t, failure)
	assert.Equal(t, models.BackendID("clickhouse"), failure.Backend)
	assert.Equal(t, errors.CodeInternal, failure.Code)
	assert.Contains(t, failure.ErrorMessage, "nil map write")
	assert.Equal(t, "SELECT 1", failure.Query)
}

func TestRecovery_PassesThroughNormalOutcomes(t *testing.T) {
	conn := &fakeConnector{
		id: "duckdb",
		executeFunc: func(ctx context.Context, query string) models.Outcome {
			return models.NewSuccess(&models.Success{Query: query, Backend: "duckdb"})
		},
	}

	outcome := WithRecovery(conn, zerolog.Nop()).Execute(context.Background(), "SELECT 1")
	assert.True(t, outcome.OK())
}

func TestMetrics_CountsSuccessesAndFailures(t *testing.T) {
	collector := newRecordingCollector()

	ok := WithMetrics(&fakeConnector{
		id: "duckdb",
		executeFunc: func(ctx context.Context, query string) models.Outcome {
			return models.NewSuccess(&models.Success{Query: query, Backend: "duckdb"})
		},
	}, collector)
	bad := WithMetrics(&fakeConnector{
		id: "clickhouse",
		executeFunc: func(ctx context.Context, query string) models.Outcome {
			return models.NewFailure(&models.Failure{
				Backend: "clickhouse",
				Code:    errors.CodeQueryFailed,
			})
		},
	}, collector)

	ok.Execute(context.Background(), "SELECT 1")
	ok.Execute(context.Background(), "SELECT 1")
	bad.Execute(context.Background(), "SELECT 1")

	assert.Equal(t, 2, collector.count("backend_execute_total|backend|duckdb"))
	assert.Equal(t, 1, collector.count("backend_execute_failures_total|backend|clickhouse|code|QUERY_FAILED"))
}

func TestLogging_PassesOutcomeThrough(t *testing.T) {
	conn := &fakeConnector{
		id: "postgres",
		executeFunc: func(ctx context.Context, query string) models.Outcome {
			return models.NewFailure(&models.Failure{
				Backend:      "postgres",
				ErrorMessage: "bad query",
				Code:         errors.CodeQueryFailed,
			})
		},
	}

	outcome := WithLogging(conn, zerolog.Nop()).Execute(context.Background(), "SELEC 1")
	require.False(t, outcome.OK())
	assert.Equal(t, "bad query", outcome.Failure.ErrorMessage)
}

func TestWrap_StackGuardsAllLayers(t *testing.T) {
	collector := newRecordingCollector()
	panicker := &fakeConnector{
		id: "duckdb",
		executeFunc: func(ctx context.Context, query string) models.Outcome {
			panic("boom")
		},
	}

	wrapped := Wrap(panicker, zerolog.Nop(), collector)
	outcome := wrapped.Execute(context.Background(), "SELECT 1")

	require.False(t, outcome.OK())
	assert.Equal(t, errors.CodeInternal, outcome.Failure.Code)
	assert.Equal(t, models.BackendID("duckdb"), wrapped.ID())
}

// pooledConnector adds pool statistics to fakeConnector.
type pooledConnector struct {
	fakeConnector
	stats pool.Stats
}

func (p *pooledConnector) Stats() pool.Stats { return p.stats }

func TestWrap_PoolStatsReachableThroughStack(t *testing.T) {
	conn := &pooledConnector{
		fakeConnector: fakeConnector{
			id: "duckdb",
			executeFunc: func(ctx context.Context, query string) models.Outcome {
				return models.NewSuccess(&models.Success{Query: query, Backend: "duckdb"})
			},
		},
		stats: pool.Stats{OpenConnections: 3, Acquisitions: 7},
	}

	wrapped := Wrap(conn, zerolog.Nop(), newRecordingCollector())

	stats, ok := backends.PoolStats(wrapped)
	require.True(t, ok, "stats must survive the middleware stack")
	assert.Equal(t, 3, stats.OpenConnections)
	assert.EqualValues(t, 7, stats.Acquisitions)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "longer", truncate("longer", 6))
	assert.Equal(t, "abc…", truncate("abcdef", 3))
}
