// Package dispatch implements the fan-out/fan-in orchestration of one query
// across multiple backends.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/volley/pkg/backends"
	"github.com/TFMV/volley/pkg/correlate"
	"github.com/TFMV/volley/pkg/errors"
	"github.com/TFMV/volley/pkg/metrics"
	"github.com/TFMV/volley/pkg/models"
	"github.com/TFMV/volley/pkg/retry"
)

// Orchestrator fans one query out to the selected backends, collects every
// outcome independently, and assembles the aggregate result. Backend
// failures never abort the call; only invocation-level misuse returns a hard
// error.
type Orchestrator struct {
	registry *backends.Registry
	policy   *retry.Policy
	logger   zerolog.Logger
	metrics  metrics.Collector
}

// New creates an orchestrator. A nil policy disables retries (single
// attempt); a nil collector disables metrics.
func New(registry *backends.Registry, policy *retry.Policy, logger zerolog.Logger, collector metrics.Collector) *Orchestrator {
	if policy == nil {
		policy = retry.New(retry.Config{MaxAttempts: 1}, nil, logger)
	}
	if collector == nil {
		collector = metrics.NewNoOpCollector()
	}
	return &Orchestrator{
		registry: registry,
		policy:   policy,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		metrics:  collector,
	}
}

// Execute dispatches the query to every backend the selection resolves to.
// It returns one outcome per selected backend regardless of individual
// success or failure, plus total wall-clock time for the whole fan-out.
func (o *Orchestrator) Execute(ctx context.Context, query string, selection models.Selection) (*models.AggregateResult, error) {
	ctx = correlate.Begin(ctx)
	log := correlate.Logger(ctx, o.logger)

	if query == "" {
		return nil, errors.ErrEmptyQuery
	}

	selected, unknown := selection.Resolve(o.registry.IDs())
	if len(unknown) > 0 {
		log.Warn().
			Str("selection", selection.String()).
			Interface("unknown", unknown).
			Msg("Selection names unregistered backends")
		return nil, errors.Newf(errors.CodeInvalidSelection, "selection names unknown backends: %v", unknown)
	}
	if len(selected) == 0 {
		log.Warn().Str("selection", selection.String()).Msg("Selection resolved to no backends")
		return nil, errors.ErrEmptySelection
	}

	log.Info().
		Str("selection", selection.String()).
		Int("backends", len(selected)).
		Msg("Dispatching query")

	timer := o.metrics.StartTimer("dispatch_duration_seconds")
	start := time.Now()

	type taskResult struct {
		id      models.BackendID
		outcome models.Outcome
	}

	results := make(chan taskResult, len(selected))
	var wg sync.WaitGroup

	for _, id := range selected {
		connector, ok := o.registry.Get(id)
		if !ok {
			// Resolve only yields registered IDs; guard anyway.
			results <- taskResult{id: id, outcome: models.NewFailure(&models.Failure{
				ErrorMessage: fmt.Sprintf("backend %q not registered", id),
				Backend:      id,
				Query:        query,
				Code:         errors.CodeInternal,
			})}
			continue
		}

		wg.Add(1)
		go func(id models.BackendID, c backends.Connector) {
			defer wg.Done()
			branchCtx := correlate.Branch(ctx)
			results <- taskResult{id: id, outcome: o.runTask(branchCtx, c, query)}
		}(id, connector)
	}

	wg.Wait()
	close(results)

	outcomes := make(map[models.BackendID]models.Outcome, len(selected))
	for r := range results {
		outcomes[r.id] = r.outcome
	}

	// A branch whose context was cancelled before it could even record an
	// outcome must still be represented in the aggregate.
	for _, id := range selected {
		if _, ok := outcomes[id]; !ok {
			outcomes[id] = models.NewFailure(&models.Failure{
				ErrorMessage: "backend task did not complete: " + ctxErrMessage(ctx),
				Backend:      id,
				Query:        query,
				Code:         errors.CodeCanceled,
			})
		}
	}

	total := time.Since(start)
	timer.Stop()
	o.metrics.IncrementCounter("dispatch_total")

	result := &models.AggregateResult{
		Outcomes:      outcomes,
		TotalDuration: total,
	}

	log.Info().
		Dur("total_duration", total).
		Int("succeeded", len(result.Succeeded())).
		Int("failed", len(result.Failed())).
		Msg("Dispatch complete")

	return result, nil
}

// runTask executes one fan-out branch: retry-wrapped connector execution
// guarded against panics and cancellation. The recover here is the isolation
// boundary: a connector violating its no-panic contract still yields a
// Failure outcome for its own identity only.
func (o *Orchestrator) runTask(ctx context.Context, c backends.Connector, query string) (outcome models.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().
				Str("backend", string(c.ID())).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Panic recovered in backend task")
			outcome = models.NewFailure(&models.Failure{
				ErrorMessage: fmt.Sprintf("backend task panicked: %v", r),
				Backend:      c.ID(),
				Query:        query,
				Code:         errors.CodeInternal,
			})
		}
	}()

	if err := ctx.Err(); err != nil {
		return models.NewFailure(&models.Failure{
			ErrorMessage: "backend task cancelled: " + err.Error(),
			Backend:      c.ID(),
			Query:        query,
			Code:         errors.CodeCanceled,
		})
	}

	return o.policy.Execute(ctx, c, query)
}

func ctxErrMessage(ctx context.Context) string {
	if err := ctx.Err(); err != nil {
		return err.Error()
	}
	return "unknown"
}
