// Package retry wraps connector calls with bounded retry for transient
// backend failures.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/volley/pkg/backends"
	"github.com/TFMV/volley/pkg/errors"
	"github.com/TFMV/volley/pkg/models"
)

// Predicate decides whether a failure outcome is transient and worth
// retrying.
type Predicate func(*models.Failure) bool

// DefaultPredicate classifies by the failure's error code: connectivity and
// timeout class failures retry, everything else surfaces immediately.
func DefaultPredicate(f *models.Failure) bool {
	return errors.IsTransientCode(f.Code)
}

// Config holds the retry budget and backoff schedule.
type Config struct {
	// MaxAttempts is the total attempt budget, first call included.
	MaxAttempts int `json:"max_attempts"`
	// BaseBackoff is the delay before the first retry; each further retry
	// doubles it.
	BaseBackoff time.Duration `json:"base_backoff"`
	// MaxBackoff caps the per-retry delay.
	MaxBackoff time.Duration `json:"max_backoff"`
	// JitterFraction randomizes each delay by ±fraction to avoid thundering
	// herds. 0 disables jitter.
	JitterFraction float64 `json:"jitter_fraction"`
}

// DefaultConfig returns the default retry schedule.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseBackoff:    100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		JitterFraction: 0.2,
	}
}

// Policy retries transient connector failures with exponential backoff.
type Policy struct {
	cfg       Config
	predicate Predicate
	log       zerolog.Logger
	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a retry policy. A nil predicate uses DefaultPredicate.
func New(cfg Config, predicate Predicate, logger zerolog.Logger) *Policy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if predicate == nil {
		predicate = DefaultPredicate
	}
	return &Policy{
		cfg:       cfg,
		predicate: predicate,
		log:       logger.With().Str("component", "retry").Logger(),
		sleep:     sleepContext,
	}
}

// Execute invokes the connector, retrying transient failures until the
// attempt budget is spent. The final attempt's real failure is returned
// unchanged; no synthetic retry-exhausted error is introduced.
func (p *Policy) Execute(ctx context.Context, c backends.Connector, query string) models.Outcome {
	var outcome models.Outcome
	for attempt := 1; ; attempt++ {
		outcome = c.Execute(ctx, query)
		if outcome.OK() {
			return outcome
		}

		failure := outcome.Failure
		if !p.predicate(failure) {
			return outcome
		}
		if attempt >= p.cfg.MaxAttempts {
			p.log.Debug().
				Str("backend", string(c.ID())).
				Int("attempts", attempt).
				Str("error", failure.ErrorMessage).
				Msg("retry budget exhausted")
			return outcome
		}

		delay := p.backoff(attempt)
		p.log.Debug().
			Str("backend", string(c.ID())).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Str("error", failure.ErrorMessage).
			Msg("transient failure, retrying")

		if err := p.sleep(ctx, delay); err != nil {
			// The caller gave up mid-backoff; surface the last real failure.
			return outcome
		}
	}
}

// backoff computes the delay before retry number `attempt` (1-based),
// doubling from the base, capped, with optional jitter.
func (p *Policy) backoff(attempt int) time.Duration {
	base := p.cfg.BaseBackoff
	if base <= 0 {
		return 0
	}
	// Large attempt counts would overflow the shift; saturate instead so the
	// delay clamps to the cap rather than wrapping negative.
	const maxDelay = time.Duration(math.MaxInt64)
	d := maxDelay
	if shift := uint(attempt - 1); shift < 63 && base <= maxDelay>>shift {
		d = base << shift
	}
	if max := p.cfg.MaxBackoff; max > 0 && d > max {
		d = max
	}
	if j := p.cfg.JitterFraction; j > 0 {
		// Spread over [d*(1-j), d*(1+j)].
		span := float64(d) * j
		d = time.Duration(float64(d) - span + 2*span*rand.Float64())
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
