package health

import (
	"context"
	"time"
)

// Status grades a component's condition.
type Status int

const (
	// StatusHealthy means the component is fully operational.
	StatusHealthy Status = iota
	// StatusDegraded means the component works but needs attention.
	StatusDegraded
	// StatusUnhealthy means the component is not operational.
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Result is the outcome of one health check.
type Result struct {
	Status Status

	// Message is a one-line summary of the outcome.
	Message string

	// Details carries structured findings, such as per-breaker states
	// or execution counts.
	Details map[string]any

	// Duration is how long the check ran. The aggregator measures and
	// sets it; standalone checkers may fill it themselves.
	Duration time.Duration

	// Timestamp is when the check ran.
	Timestamp time.Time

	// Error is set when the check could not complete or found a fault.
	Error error
}

// Healthy builds a healthy result carrying the given summary.
func Healthy(message string) Result {
	return Result{
		Status:    StatusHealthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Degraded builds a degraded result carrying the given summary.
func Degraded(message string) Result {
	return Result{
		Status:    StatusDegraded,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Unhealthy builds an unhealthy result carrying the summary and the
// fault that produced it.
func Unhealthy(message string, err error) Result {
	return Result{
		Status:    StatusUnhealthy,
		Message:   message,
		Error:     err,
		Timestamp: time.Now(),
	}
}

// WithDetails returns a copy of the result with details attached.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// WithDuration returns a copy of the result with the duration set.
func (r Result) WithDuration(d time.Duration) Result {
	r.Duration = d
	return r
}

// Checker probes one component. Checkers are named at registration, so
// one implementation can serve several registrations.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use; the
//   aggregator may run them in parallel.
// - Context: implementations should honor cancellation and return
//   promptly once ctx is done.
type Checker interface {
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a plain function into a Checker.
type CheckerFunc func(ctx context.Context) Result

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context) Result {
	return f(ctx)
}

// NewPingChecker adapts a ping-style connectivity probe into a Checker.
// A nil ping error reads as healthy. Dependencies that expose
// PingContext, like database handles and the Postgres record sink, plug
// in directly.
func NewPingChecker(ping func(ctx context.Context) error) Checker {
	return CheckerFunc(func(ctx context.Context) Result {
		start := time.Now()
		if err := ping(ctx); err != nil {
			return Unhealthy("ping failed", err).WithDuration(time.Since(start))
		}
		return Healthy("ping ok").WithDuration(time.Since(start))
	})
}
