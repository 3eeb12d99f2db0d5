// Package resilience wraps a provider call with a circuit breaker per
// provider kind plus a bounded exponential retry for transient errors,
// grounded on the teacher's gobreaker.Settings wiring
// (test/integration/notification/suite_test.go's circuitBreakerManager)
// generalized from one notification-channel breaker to one breaker per
// provider kind (segmenter, background generator, storefront).
//
// This sits below the job-level retry policy in pkg/state: that policy
// decides whether a whole step is re-attempted after the executor has
// given up; this package decides whether one provider call recovers
// from a transient blip without ever surfacing as a step failure.
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
)

// Config tunes the breaker and retry policy for one provider kind.
type Config struct {
	Name                string
	ConsecutiveFailures uint32        // trips the breaker after this many in a row
	OpenTimeout         time.Duration // how long the breaker stays open before half-opening
	MaxRetries          int           // bounded attempts inside one Call
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
}

// DefaultConfig returns sane defaults for a provider named name.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		MaxRetries:          3,
		InitialBackoff:      200 * time.Millisecond,
		MaxBackoff:          5 * time.Second,
	}
}

// Wrapper decorates provider calls with a circuit breaker and bounded
// retry. One Wrapper corresponds to one provider kind; concurrent
// calls through it share the same breaker state.
type Wrapper struct {
	cb  *gobreaker.CircuitBreaker
	cfg Config
}

// New builds a Wrapper for cfg.
func New(cfg Config) *Wrapper {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
	}
	return &Wrapper{cb: gobreaker.NewCircuitBreaker(settings), cfg: cfg}
}

// IsTransient classifies an error as worth retrying inside Call. A nil
// classifier (the common case) treats every error as transient and
// leaves the retryable/non-retryable distinction to the taxonomy codes
// the caller applies afterward.
type IsTransient func(error) bool

// Call runs fn through the breaker, retrying transient failures with
// exponential backoff (cfg.InitialBackoff up to cfg.MaxBackoff) for at
// most cfg.MaxRetries attempts in total before giving up.
func (w *Wrapper) Call(ctx context.Context, transient IsTransient, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	op := func() (interface{}, error) {
		res, err := w.cb.Execute(func() (interface{}, error) { return fn(ctx) })
		if err != nil && transient != nil && !transient(err) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	}

	b := backoff.NewExponentialBackOff()
	if w.cfg.InitialBackoff > 0 {
		b.InitialInterval = w.cfg.InitialBackoff
	}
	if w.cfg.MaxBackoff > 0 {
		b.MaxInterval = w.cfg.MaxBackoff
	}

	return backoff.Retry(ctx, op,
		backoff.WithMaxTries(uint(w.cfg.MaxRetries)),
		backoff.WithBackOff(b))
}

// State reports the breaker's current state, for health/status
// endpoints.
func (w *Wrapper) State() gobreaker.State {
	return w.cb.State()
}
