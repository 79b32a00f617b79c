package reelflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper backed by a timer
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryObserver is told about every retry before its delay starts
type RetryObserver func(attempt int, err error, delay time.Duration)

type retryOptions struct {
	sleep          Sleeper
	onRetry        RetryObserver
	attemptTimeout time.Duration
}

// RetryOption configures a single Retry call
type RetryOption func(*retryOptions)

// WithSleeper replaces the timer-based sleep (tests use it to record delays)
func WithSleeper(s Sleeper) RetryOption {
	return func(o *retryOptions) {
		if s != nil {
			o.sleep = s
		}
	}
}

// OnRetry registers an observer for retries
func OnRetry(fn RetryObserver) RetryOption {
	return func(o *retryOptions) {
		o.onRetry = fn
	}
}

// WithAttemptTimeout bounds each attempt with its own deadline
func WithAttemptTimeout(d time.Duration) RetryOption {
	return func(o *retryOptions) {
		o.attemptTimeout = d
	}
}

// Retry runs op under policy. It returns the value, the number of attempts made and
// the error. Retryable failures are retried until MaxAttempts, after which the last
// error is returned wrapped in RetriesExhaustedError. Any other kind stops at once.
func Retry[T any](
	ctx context.Context,
	policy RetryPolicy,
	op func(ctx context.Context, attempt int) (T, error),
	opts ...RetryOption,
) (T, int, error) {
	options := &retryOptions{sleep: SleepContext}
	for _, opt := range opts {
		opt(options)
	}

	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var zero T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, fmt.Errorf("retry cancelled before attempt %d: %w", attempt, err)
		}

		value, err := runAttempt(ctx, options.attemptTimeout, attempt, op)
		if err == nil {
			return value, attempt, nil
		}
		lastErr = err

		// The parent going away is cancellation even if the op reported a deadline
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, context.Canceled) {
			return zero, attempt, fmt.Errorf("%w: %v", ctxErr, err)
		}

		if Classify(err) != KindRetryable {
			return zero, attempt, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := policy.Delay(attempt)
		if options.onRetry != nil {
			options.onRetry(attempt, err, delay)
		}
		if err := options.sleep(ctx, delay); err != nil {
			return zero, attempt, fmt.Errorf("retry cancelled during backoff: %w", err)
		}
	}

	return zero, maxAttempts, &RetriesExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

func runAttempt[T any](
	ctx context.Context,
	timeout time.Duration,
	attempt int,
	op func(ctx context.Context, attempt int) (T, error),
) (value T, err error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()

	value, err = op(attemptCtx, attempt)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		err = fmt.Errorf("attempt timed out after %s: %w", timeout, err)
	}
	return value, err
}
