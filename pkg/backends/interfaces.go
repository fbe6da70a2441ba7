// Package backends defines the connector contract implemented by each query
// backend, and the registry of connectors known to the dispatcher.
package backends

import (
	"context"

	"github.com/TFMV/volley/pkg/models"
	"github.com/TFMV/volley/pkg/pool"
)

// Connector executes one query against one backend.
//
// Execute never returns a Go error and never lets a panic escape: every
// failure mode, including connection and timeout failures, is converted into
// a Failure outcome carrying the backend identity. That guarantee is what
// lets the orchestrator treat every fan-out branch uniformly.
//
// Connectors are shared across concurrent calls and must not keep per-call
// state; each Execute acquires its own scoped connection and releases it on
// every exit path.
type Connector interface {
	// ID returns the stable identity of the backend.
	ID() models.BackendID
	// Execute runs the query and returns its outcome.
	Execute(ctx context.Context, query string) models.Outcome
	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// StatsProvider is implemented by connectors backed by a connection pool.
type StatsProvider interface {
	Stats() pool.Stats
}

// PoolStats returns the connector's pool statistics, unwrapping middleware
// layers until it reaches a StatsProvider. The second return is false when no
// layer exposes stats.
func PoolStats(c Connector) (pool.Stats, bool) {
	for c != nil {
		if sp, ok := c.(StatsProvider); ok {
			return sp.Stats(), true
		}
		u, ok := c.(interface{ Unwrap() Connector })
		if !ok {
			break
		}
		c = u.Unwrap()
	}
	return pool.Stats{}, false
}
