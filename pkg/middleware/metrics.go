package middleware

import (
	"context"
	"time"

	"github.com/TFMV/volley/pkg/backends"
	"github.com/TFMV/volley/pkg/metrics"
	"github.com/TFMV/volley/pkg/models"
)

// MetricsConnector wraps a connector with per-backend metrics.
type MetricsConnector struct {
	backends.Connector
	collector metrics.Collector
}

// WithMetrics wraps the connector with metrics collection.
func WithMetrics(c backends.Connector, collector metrics.Collector) *MetricsConnector {
	return &MetricsConnector{
		Connector: c,
		collector: collector,
	}
}

// Unwrap returns the wrapped connector.
func (m *MetricsConnector) Unwrap() backends.Connector { return m.Connector }

// Execute records call counts, failure counts by code, and latency.
func (m *MetricsConnector) Execute(ctx context.Context, query string) models.Outcome {
	backend := string(m.ID())
	start := time.Now()

	outcome := m.Connector.Execute(ctx, query)

	m.collector.RecordHistogram("backend_execute_duration_seconds", time.Since(start).Seconds(), "backend", backend)
	if f := outcome.Failure; f != nil {
		m.collector.IncrementCounter("backend_execute_failures_total", "backend", backend, "code", f.Code)
	} else {
		m.collector.IncrementCounter("backend_execute_total", "backend", backend)
	}
	return outcome
}
