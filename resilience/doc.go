// Package resilience provides per-operation-key failure handling for
// pipeline stages that call unreliable services.
//
// # Patterns
//
// The package provides the following building blocks:
//
//   - Circuit Breaker: Rejects calls to a failing dependency after a
//     failure threshold, then probes it after a recovery timeout.
//
//   - Retry: Re-runs failed operations with exponential backoff,
//     interruptible by context cancellation.
//
//   - Rate Limiter: Throttles how often one operation key runs.
//
//   - Bulkhead: Caps how many executions of one key run concurrently.
//
//   - Timeout: Bounds a single attempt.
//
//   - Last-good cache: Remembers the latest successful result per key so
//     fallbacks can serve stale data during outages.
//
// # Coordinator
//
// The Coordinator ties the blocks together behind a registry of operation
// keys. Each key gets a breaker, a retry policy, and optionally a fallback
// and admission limits. Retry wraps the breaker, so every attempt passes
// breaker admission on its own:
//
//	coord := resilience.NewCoordinator[Input, Output]()
//	err := coord.Register("enrich", resilience.OperationConfig[Input, Output]{
//	    Breaker: resilience.CircuitBreakerConfig{
//	        FailureThreshold: 5,
//	        RecoveryTimeout:  30 * time.Second,
//	    },
//	    Retry: resilience.RetryConfig{
//	        MaxAttempts:   3,
//	        BaseDelay:     time.Second,
//	        BackoffFactor: 2.0,
//	    },
//	    FallbackToLastGood: true,
//	})
//
//	out, err := coord.Execute(ctx, "enrich", enrichLeads, input)
//
// Executing a key that was never registered fails immediately with
// UnregisteredOperationError; the operation is not invoked.
package resilience
