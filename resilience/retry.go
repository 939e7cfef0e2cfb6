package resilience

import (
	"context"
	"errors"
	"math"
	"time"
)

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Subsequent delays grow
	// by BackoffFactor per attempt.
	// Default: 1s
	BaseDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// BackoffFactor is the exponential growth factor between attempts.
	// Default: 2.0
	BackoffFactor float64

	// RetryIf determines if an error should trigger a retry.
	// Default: all non-nil errors except context cancellation. An open
	// circuit stays retryable; those attempts are rejected at admission
	// without touching the dependency.
	RetryIf func(err error) bool

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry implements retry with exponential backoff. The delay before retry
// n is BaseDelay x BackoffFactor^(n-1), capped at MaxDelay. Waits are
// interruptible: cancellation during backoff surfaces the context error
// immediately.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	// Apply defaults
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.BackoffFactor <= 0 {
		config.BackoffFactor = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = func(err error) bool {
			if err == nil {
				return false
			}
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
	}

	return &Retry{config: config}
}

// Execute runs the operation with retry logic. After exhaustion the error
// from the final attempt is returned; earlier errors are dropped.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := op(ctx)

		if err == nil {
			return nil
		}

		lastErr = err

		// Check if we should retry
		if !r.config.RetryIf(err) {
			return err
		}

		// Don't retry if this was the last attempt
		if attempt >= r.config.MaxAttempts {
			break
		}

		delay := r.calculateDelay(attempt)

		// Callback before retry
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		// Wait for delay or context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			// Continue to next attempt
		}
	}

	return lastErr
}

// ExecuteWithFallback runs the operation with retry logic, then falls back
// once if every attempt failed. A failing fallback yields a
// FallbackExhaustedError carrying both errors.
func (r *Retry) ExecuteWithFallback(ctx context.Context, op, fallback func(context.Context) error) error {
	primaryErr := r.Execute(ctx, op)
	if primaryErr == nil {
		return nil
	}

	if err := fallback(ctx); err != nil {
		return &FallbackExhaustedError{PrimaryErr: primaryErr, FallbackErr: err}
	}
	return nil
}

func (r *Retry) calculateDelay(attempt int) time.Duration {
	multiplier := math.Pow(r.config.BackoffFactor, float64(attempt-1))
	delay := time.Duration(float64(r.config.BaseDelay) * multiplier)

	// Cap at max delay
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	return delay
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
