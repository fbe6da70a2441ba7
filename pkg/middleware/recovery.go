package middleware

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/TFMV/volley/pkg/backends"
	"github.com/TFMV/volley/pkg/errors"
	"github.com/TFMV/volley/pkg/metrics"
	"github.com/TFMV/volley/pkg/models"
)

// RecoveryConnector converts panics inside a connector into Failure outcomes
// so one misbehaving backend cannot abort a sibling's fan-out branch.
type RecoveryConnector struct {
	backends.Connector
	logger zerolog.Logger
}

// WithRecovery wraps the connector with panic recovery.
func WithRecovery(c backends.Connector, logger zerolog.Logger) *RecoveryConnector {
	return &RecoveryConnector{
		Connector: c,
		logger:    logger.With().Str("backend", string(c.ID())).Logger(),
	}
}

// Unwrap returns the wrapped connector.
func (m *RecoveryConnector) Unwrap() backends.Connector { return m.Connector }

// Execute recovers any panic from the wrapped connector.
func (m *RecoveryConnector) Execute(ctx context.Context, query string) (outcome models.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			m.logger.Error().
				Interface("panic", r).
				Str("stack", string(stack)).
				Msg("Panic recovered in backend execute")

			outcome = models.NewFailure(&models.Failure{
				ErrorMessage: fmt.Sprintf("backend panicked: %v", r),
				Backend:      m.ID(),
				Query:        query,
				Code:         errors.CodeInternal,
			})
		}
	}()

	return m.Connector.Execute(ctx, query)
}

// Wrap applies the standard middleware stack. Recovery goes outermost so it
// also guards the logging and metrics layers.
func Wrap(c backends.Connector, logger zerolog.Logger, collector metrics.Collector) backends.Connector {
	wrapped := backends.Connector(c)
	if collector != nil {
		wrapped = WithMetrics(wrapped, collector)
	}
	wrapped = WithLogging(wrapped, logger)
	return WithRecovery(wrapped, logger)
}
