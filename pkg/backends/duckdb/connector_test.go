package duckdb

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/volley/pkg/errors"
	"github.com/TFMV/volley/pkg/models"
)

func newTestConnector(t *testing.T) *Connector {
	t.Helper()
	c, err := New(Config{Path: ":memory:"}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnectorID(t *testing.T) {
	c := newTestConnector(t)
	assert.Equal(t, models.BackendDuckDB, c.ID())
}

func TestExecute_Rows(t *testing.T) {
	c := newTestConnector(t)

	outcome := c.Execute(context.Background(),
		"SELECT * FROM (VALUES (1, 'a'), (2, 'b'), (3, 'c')) AS t(id, name) ORDER BY id")

	require.True(t, outcome.OK(), "expected success, got %+v", outcome.Failure)
	success := outcome.Success
	assert.Equal(t, models.BackendDuckDB, success.Backend)
	assert.Len(t, success.Rows, 3)
	assert.Equal(t, "Successfully executed query returning 3 rows", success.Explanation)
	assert.Positive(t, success.ExecutionTime)

	assert.EqualValues(t, 1, success.Rows[0]["id"])
	assert.Equal(t, "a", success.Rows[0]["name"])
}

func TestExecute_EmptyResult(t *testing.T) {
	c := newTestConnector(t)

	outcome := c.Execute(context.Background(), "SELECT 1 AS x WHERE 1 = 0")

	require.True(t, outcome.OK())
	assert.Empty(t, outcome.Success.Rows)
	assert.Equal(t, "Successfully executed query returning 0 rows", outcome.Success.Explanation)
}

func TestExecute_MalformedQueryIsPermanentFailure(t *testing.T) {
	c := newTestConnector(t)

	outcome := c.Execute(context.Background(), "SELEC 1")

	require.False(t, outcome.OK())
	failure := outcome.Failure
	require.NotNil(t, failure)
	assert.Equal(t, models.BackendDuckDB, failure.Backend)
	assert.Equal(t, "SELEC 1", failure.Query)
	assert.Equal(t, errors.CodeQueryFailed, failure.Code)
}

func TestExecute_CancelledContext(t *testing.T) {
	c := newTestConnector(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := c.Execute(ctx, "SELECT 1")

	require.False(t, outcome.OK())
	assert.Equal(t, errors.CodeCanceled, outcome.Failure.Code)
}

func TestHealthCheck(t *testing.T) {
	c := newTestConnector(t)
	require.NoError(t, c.HealthCheck(context.Background()))
}
