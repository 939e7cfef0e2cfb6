package resilience

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonwraymond/stageflow/monitor"
)

// Operation is a unit of work executed under a registered key's resilience
// policy. A and R are the argument and result types shared by the primary
// operation and its fallback.
type Operation[A, R any] func(ctx context.Context, args A) (R, error)

// OperationConfig is the per-key resilience policy.
type OperationConfig[A, R any] struct {
	// Breaker configures the key's circuit breaker.
	Breaker CircuitBreakerConfig

	// Retry configures the key's retry policy.
	Retry RetryConfig

	// Fallback runs once, with the original arguments, after every retry
	// attempt has failed. Optional.
	Fallback Operation[A, R]

	// FallbackToLastGood serves the key's most recent successful result as
	// the fallback. Mutually exclusive with Fallback.
	FallbackToLastGood bool

	// Timeout bounds each individual attempt. Zero means no deadline.
	Timeout time.Duration

	// Bulkhead caps concurrent executions of this key. Nil means unlimited.
	Bulkhead *BulkheadConfig

	// RateLimit throttles executions of this key. Nil means unlimited.
	RateLimit *RateLimiterConfig
}

type entry[A, R any] struct {
	breaker  *CircuitBreaker
	retry    *Retry
	fallback Operation[A, R]
	timeout  *Timeout
	bulkhead *Bulkhead
	limiter  *RateLimiter
	remember bool
}

// Coordinator routes operations through per-key resilience policies:
// circuit breaker, retry, optional fallback, and optional admission
// controls. Keys must be registered before use; executing an unknown key
// is a configuration error and fails without invoking the operation.
//
// A Coordinator is constructed explicitly and handed to its callers; there
// is no package-level registry.
type Coordinator[A, R any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[A, R]

	monitor  monitor.Monitor
	lastGood *LastGood[R]
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption[A, R any] func(*Coordinator[A, R])

// WithMonitor sets the sink receiving execution and transition records.
func WithMonitor[A, R any](m monitor.Monitor) CoordinatorOption[A, R] {
	return func(c *Coordinator[A, R]) {
		if m != nil {
			c.monitor = m
		}
	}
}

// WithLastGoodTTL bounds how long remembered results stay servable by
// last-good fallbacks. Default: no expiry.
func WithLastGoodTTL[A, R any](ttl time.Duration) CoordinatorOption[A, R] {
	return func(c *Coordinator[A, R]) {
		c.lastGood = NewLastGood[R](ttl)
	}
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator[A, R any](opts ...CoordinatorOption[A, R]) *Coordinator[A, R] {
	c := &Coordinator[A, R]{
		entries: make(map[string]*entry[A, R]),
		monitor: monitor.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.lastGood == nil {
		c.lastGood = NewLastGood[R](0)
	}
	return c
}

// Register installs the resilience policy for an operation key.
func (c *Coordinator[A, R]) Register(key string, cfg OperationConfig[A, R]) error {
	if key == "" {
		return fmt.Errorf("resilience: operation key must not be empty")
	}
	if cfg.Fallback != nil && cfg.FallbackToLastGood {
		return fmt.Errorf("resilience: operation %q: Fallback and FallbackToLastGood are mutually exclusive", key)
	}

	// Chain the transition record behind any caller hook.
	userHook := cfg.Breaker.OnStateChange
	cfg.Breaker.OnStateChange = func(from, to State) {
		if userHook != nil {
			userHook(from, to)
		}
		c.recordTransition(key, from, to)
	}

	fallback := cfg.Fallback
	if cfg.FallbackToLastGood {
		fallback = func(ctx context.Context, args A) (R, error) {
			if v, ok := c.lastGood.Get(key); ok {
				return v, nil
			}
			var zero R
			return zero, ErrNoLastGood
		}
	}

	ent := &entry[A, R]{
		breaker:  NewCircuitBreaker(cfg.Breaker),
		retry:    NewRetry(cfg.Retry),
		fallback: fallback,
		remember: cfg.FallbackToLastGood,
	}
	if cfg.Timeout > 0 {
		ent.timeout = NewTimeout(TimeoutConfig{Timeout: cfg.Timeout})
	}
	if cfg.Bulkhead != nil {
		ent.bulkhead = NewBulkhead(*cfg.Bulkhead)
	}
	if cfg.RateLimit != nil {
		ent.limiter = NewRateLimiter(*cfg.RateLimit)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		return fmt.Errorf("resilience: operation %q already registered", key)
	}
	c.entries[key] = ent
	return nil
}

// Has reports whether key is registered.
func (c *Coordinator[A, R]) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Keys returns the registered operation keys, sorted.
func (c *Coordinator[A, R]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Execute runs op under key's policy and returns its result.
//
// Retry sits outside the breaker: every attempt passes breaker admission
// individually, so a breaker that opens mid-sequence fails the remaining
// attempts immediately with ErrCircuitOpen instead of touching the
// dependency. Rate limit and bulkhead admit each attempt before the
// breaker; the per-attempt timeout applies inside it. An attempt that
// outlives its deadline winds down in the background and whatever it
// returns afterwards is discarded.
//
// When all attempts fail, a registered fallback runs once with the same
// arguments; if it also fails, the returned error is a
// FallbackExhaustedError carrying both causes. Exactly one execution record
// is emitted per call, covering the terminal outcome.
func (c *Coordinator[A, R]) Execute(ctx context.Context, key string, op Operation[A, R], args A) (R, error) {
	var zero R

	c.mu.RLock()
	ent, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return zero, &UnregisteredOperationError{Key: key}
	}

	start := time.Now()

	var result R
	attempts := 0

	// Each attempt writes into its own slot, copied out only on the
	// synchronous success path. A timed-out attempt keeps running under
	// its cancelled context, but its late result lands in a slot nothing
	// reads again, so it can never publish into the call's outcome.
	attempt := func(ctx context.Context) error {
		var r R
		invoke := func(ctx context.Context) error {
			v, err := op(ctx, args)
			if err != nil {
				return err
			}
			r = v
			return nil
		}

		// Chain inside out: timeout, breaker, bulkhead, rate limit. Local
		// admission rejections stay out of the breaker's failure counts.
		run := invoke
		if ent.timeout != nil {
			inner := run
			run = func(ctx context.Context) error {
				return ent.timeout.Execute(ctx, inner)
			}
		}
		{
			inner := run
			run = func(ctx context.Context) error {
				return ent.breaker.Execute(ctx, inner)
			}
		}
		if ent.bulkhead != nil {
			inner := run
			run = func(ctx context.Context) error {
				return ent.bulkhead.Execute(ctx, inner)
			}
		}
		if ent.limiter != nil {
			inner := run
			run = func(ctx context.Context) error {
				return ent.limiter.Execute(ctx, inner)
			}
		}

		if err := run(ctx); err != nil {
			return err
		}
		result = r
		return nil
	}

	counted := func(ctx context.Context) error {
		attempts++
		return attempt(ctx)
	}

	err := ent.retry.Execute(ctx, counted)

	usedFallback := false
	if err != nil && ent.fallback != nil {
		usedFallback = true
		fb, fbErr := ent.fallback(ctx, args)
		if fbErr != nil {
			err = &FallbackExhaustedError{Key: key, PrimaryErr: err, FallbackErr: fbErr}
		} else {
			result = fb
			err = nil
		}
	}

	if err == nil && !usedFallback && ent.remember {
		c.lastGood.Put(key, result)
	}

	c.recordOutcome(ctx, key, time.Since(start), attempts, usedFallback, err)

	if err != nil {
		return zero, err
	}
	return result, nil
}

// Status returns a snapshot of key's breaker.
func (c *Coordinator[A, R]) Status(key string) (BreakerStatus, error) {
	c.mu.RLock()
	ent, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return BreakerStatus{}, &UnregisteredOperationError{Key: key}
	}
	return ent.breaker.Status(), nil
}

// Reset forces key's breaker closed and clears its counters.
func (c *Coordinator[A, R]) Reset(key string) error {
	c.mu.RLock()
	ent, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return &UnregisteredOperationError{Key: key}
	}
	ent.breaker.Reset()
	return nil
}

// ResetAll resets every registered breaker.
func (c *Coordinator[A, R]) ResetAll() {
	c.mu.RLock()
	ents := make([]*entry[A, R], 0, len(c.entries))
	for _, ent := range c.entries {
		ents = append(ents, ent)
	}
	c.mu.RUnlock()

	for _, ent := range ents {
		ent.breaker.Reset()
	}
}

// Summary reports the coordinator's aggregate breaker health.
type Summary struct {
	// Healthy is true when every breaker is closed.
	Healthy bool

	// States maps each operation key to its breaker state.
	States map[string]State
}

// HealthSummary returns the per-key breaker states. The result is healthy
// only if every breaker is closed.
func (c *Coordinator[A, R]) HealthSummary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Summary{Healthy: true, States: make(map[string]State, len(c.entries))}
	for key, ent := range c.entries {
		state := ent.breaker.State()
		s.States[key] = state
		if state != StateClosed {
			s.Healthy = false
		}
	}
	return s
}

func (c *Coordinator[A, R]) recordOutcome(ctx context.Context, key string, d time.Duration, attempts int, usedFallback bool, err error) {
	rec := monitor.Record{
		Key:      key,
		Duration: d,
		Success:  err == nil,
		Meta: map[string]any{
			monitor.MetaKind:     monitor.KindOperation,
			monitor.MetaAttempts: attempts,
			monitor.MetaFallback: usedFallback,
		},
		Time: time.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	c.emit(ctx, rec)
}

func (c *Coordinator[A, R]) recordTransition(key string, from, to State) {
	c.emit(context.Background(), monitor.Record{
		Key:     key,
		Success: to == StateClosed,
		Meta: map[string]any{
			monitor.MetaKind: monitor.KindTransition,
			monitor.MetaFrom: from.String(),
			monitor.MetaTo:   to.String(),
		},
		Time: time.Now(),
	})
}

// emit delivers a record without letting the sink fail the execution.
func (c *Coordinator[A, R]) emit(ctx context.Context, rec monitor.Record) {
	defer func() {
		_ = recover()
	}()
	c.monitor.Record(ctx, rec)
}
