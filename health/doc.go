// Package health provides health checking primitives for the resilience
// engine and its sinks.
//
// A Checker is any component that can report its health status. The Status
// type represents the health state: Healthy, Degraded, or Unhealthy. The
// package ships checkers for the two signals the engine itself produces:
// circuit breaker states (NewBreakerChecker) and recent execution failure
// rates (NewFailureRateChecker), plus a ping adapter for connection-backed
// sinks.
//
// # Aggregating Health Checks
//
// Use Aggregator to combine multiple health checks into one report:
//
//	agg := health.NewAggregator()
//	agg.Register("breakers", health.NewBreakerChecker(coord))
//	agg.Register("executions", health.NewFailureRateChecker(memorySink, health.FailureRateCheckerConfig{}))
//	agg.Register("ledger", health.NewPingChecker(pgSink.Ping))
//
//	report := agg.Report(ctx)
//	if report.Status != health.StatusHealthy {
//	    // shed load, alert, or stop routing new runs
//	}
//
// # HTTP Endpoints
//
// The package provides HTTP handlers for common probe patterns:
//
//	// Liveness probe
//	http.Handle("/healthz", health.LivenessHandler())
//
//	// Readiness probe with component checks
//	http.Handle("/readyz", health.ReadinessHandler(aggregator))
//
//	// Detailed health status
//	http.Handle("/health", health.DetailedHandler(aggregator))
package health
