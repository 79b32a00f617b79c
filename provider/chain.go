// Package provider implements ordered fallback chains over interchangeable
// capability backends. Each backend is wrapped by a RetryPolicy; a chain falls
// through to the next backend when one is unavailable or has exhausted its
// retries, and stops at once on a fatal request error.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sicko7947/reelflow"
)

// Backend is one concrete provider for a capability
type Backend[Req, Resp any] struct {
	Name string
	Call func(ctx context.Context, req Req) (Resp, error)
}

// Result describes how a request was served
type Result struct {
	ServedBy string
	Attempts []reelflow.ProviderAttempt
}

// TotalAttempts sums attempts across every backend tried
func (r Result) TotalAttempts() int {
	n := 0
	for _, a := range r.Attempts {
		n += a.Attempts
	}
	return n
}

// Providers lists the backends tried, in order
func (r Result) Providers() []string {
	names := make([]string, 0, len(r.Attempts))
	for _, a := range r.Attempts {
		names = append(names, a.Provider)
	}
	return names
}

type chainOptions struct {
	logger         zerolog.Logger
	sleep          reelflow.Sleeper
	attemptTimeout time.Duration
}

// Option configures a Chain
type Option func(*chainOptions)

// WithLogger sets the chain logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *chainOptions) {
		o.logger = logger
	}
}

// WithSleeper replaces the backoff sleep
func WithSleeper(s reelflow.Sleeper) Option {
	return func(o *chainOptions) {
		o.sleep = s
	}
}

// WithAttemptTimeout bounds every provider call
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *chainOptions) {
		o.attemptTimeout = d
	}
}

// Chain is an ordered list of interchangeable backends for one capability
type Chain[Req, Resp any] struct {
	backends []Backend[Req, Resp]
	policy   reelflow.RetryPolicy
	opts     chainOptions
}

// NewChain creates a chain trying backends in order under policy
func NewChain[Req, Resp any](policy reelflow.RetryPolicy, backends []Backend[Req, Resp], opts ...Option) *Chain[Req, Resp] {
	options := chainOptions{
		logger: zerolog.Nop(),
		sleep:  reelflow.SleepContext,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Chain[Req, Resp]{
		backends: append([]Backend[Req, Resp](nil), backends...),
		policy:   policy,
		opts:     options,
	}
}

// Len returns the number of backends
func (c *Chain[Req, Resp]) Len() int {
	return len(c.backends)
}

// Invoke serves req from the first backend that succeeds. It fails with a
// *reelflow.ChainError when a backend rejects the request as fatal or when
// every backend has failed.
func (c *Chain[Req, Resp]) Invoke(ctx context.Context, req Req) (Resp, Result, error) {
	var zero Resp
	var result Result

	for i, backend := range c.backends {
		logger := c.opts.logger.With().Str("provider", backend.Name).Logger()

		value, attempts, err := reelflow.Retry(ctx, c.policy,
			func(ctx context.Context, _ int) (Resp, error) {
				return backend.Call(ctx, req)
			},
			reelflow.WithSleeper(c.opts.sleep),
			reelflow.WithAttemptTimeout(c.opts.attemptTimeout),
			reelflow.OnRetry(func(attempt int, err error, delay time.Duration) {
				reelflow.LogUnitRetrying(logger, backend.Name, attempt, delay, err)
			}),
		)
		result.Attempts = append(result.Attempts, reelflow.ProviderAttempt{
			Provider: backend.Name,
			Attempts: attempts,
			Err:      err,
		})

		if err == nil {
			result.ServedBy = backend.Name
			return value, result, nil
		}

		switch reelflow.Classify(err) {
		case reelflow.KindFatalRequest:
			return zero, result, &reelflow.ChainError{Kind: reelflow.ChainFatalRequest, Attempts: result.Attempts}
		case reelflow.KindCancelled:
			return zero, result, fmt.Errorf("provider chain cancelled at %s: %w", backend.Name, err)
		}
		if ctx.Err() != nil {
			return zero, result, fmt.Errorf("provider chain cancelled at %s: %w", backend.Name, ctx.Err())
		}

		if i+1 < len(c.backends) {
			reelflow.LogProviderFallback(logger, backend.Name, c.backends[i+1].Name, err)
		}
	}

	return zero, result, &reelflow.ChainError{Kind: reelflow.ChainExhausted, Attempts: result.Attempts}
}
