package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// PerSecond is the sustained number of operations allowed per second.
	// Default: 100
	PerSecond float64

	// Burst is the bucket capacity.
	// Default: 10
	Burst int

	// MaxWait is the maximum time Execute waits for a token.
	// Default: 0 (no waiting, fail immediately)
	MaxWait time.Duration
}

// RateLimiter is a token bucket guarding one operation key. Tokens refill
// continuously at PerSecond up to Burst; refill is computed lazily on each
// check rather than by a ticker.
type RateLimiter struct {
	config RateLimiterConfig

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	// Apply defaults
	if config.PerSecond <= 0 {
		config.PerSecond = 100
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}

	return &RateLimiter{
		config:     config,
		tokens:     float64(config.Burst),
		lastRefill: time.Now(),
	}
}

// Allow consumes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked()

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available, the wait budget runs out, or the
// context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	deadline := time.Now().Add(rl.config.MaxWait)

	for {
		if rl.Allow() {
			return nil
		}

		rl.mu.Lock()
		need := 1 - rl.tokens
		pause := time.Duration(need / rl.config.PerSecond * float64(time.Second))
		rl.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrRateLimitExceeded
		}
		if pause > remaining {
			pause = remaining
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}

// Execute runs the operation if the rate limit admits it. With MaxWait set
// it waits for a token; otherwise over-limit calls fail immediately with
// ErrRateLimitExceeded.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if rl.config.MaxWait > 0 {
		if err := rl.Wait(ctx); err != nil {
			return err
		}
	} else if !rl.Allow() {
		return ErrRateLimitExceeded
	}

	return op(ctx)
}

func (rl *RateLimiter) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)
	rl.lastRefill = now

	rl.tokens += elapsed.Seconds() * rl.config.PerSecond
	if rl.tokens > float64(rl.config.Burst) {
		rl.tokens = float64(rl.config.Burst)
	}
}

// Tokens returns the current number of available tokens.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked()
	return rl.tokens
}

// Reset refills the bucket to capacity.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = float64(rl.config.Burst)
	rl.lastRefill = time.Now()
}
