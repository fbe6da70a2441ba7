// Package middleware provides composable connector wrappers for logging,
// metrics, and panic recovery.
package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/volley/pkg/backends"
	"github.com/TFMV/volley/pkg/correlate"
	"github.com/TFMV/volley/pkg/models"
)

// LoggingConnector wraps a connector with per-call structured logging.
type LoggingConnector struct {
	backends.Connector
	logger zerolog.Logger
}

// WithLogging wraps the connector with request logging.
func WithLogging(c backends.Connector, logger zerolog.Logger) *LoggingConnector {
	return &LoggingConnector{
		Connector: c,
		logger:    logger.With().Str("backend", string(c.ID())).Logger(),
	}
}

// Unwrap returns the wrapped connector.
func (m *LoggingConnector) Unwrap() backends.Connector { return m.Connector }

// Execute logs one event per call, carrying the correlation identifiers and
// outcome.
func (m *LoggingConnector) Execute(ctx context.Context, query string) models.Outcome {
	start := time.Now()

	outcome := m.Connector.Execute(ctx, query)

	duration := time.Since(start)
	event := m.logger.Info()
	if f := outcome.Failure; f != nil {
		event = m.logger.Error().
			Str("code", f.Code).
			Str("error", f.ErrorMessage)
	}

	correlate.Fields(ctx, event).
		Str("query", truncate(query, 120)).
		Dur("duration", duration).
		Bool("ok", outcome.OK()).
		Msg("Backend execute")

	return outcome
}

// truncate shortens long queries for log lines.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
