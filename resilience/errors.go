package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRateLimitExceeded is returned when the rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrNoLastGood is returned when a last-good fallback has no remembered
	// result to serve.
	ErrNoLastGood = errors.New("resilience: no last good result")
)

// TransientError marks an error as a passing fault worth retrying.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("resilience: transient: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked transient.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// UnregisteredOperationError is returned when a coordinator call names an
// operation key that was never registered. It signals a configuration
// error; the operation is not invoked.
type UnregisteredOperationError struct {
	Key string
}

// Error implements the error interface.
func (e *UnregisteredOperationError) Error() string {
	return fmt.Sprintf("resilience: operation %q is not registered", e.Key)
}

// FallbackExhaustedError is returned when both the primary path (after all
// retries) and the registered fallback failed. Both causes are preserved.
type FallbackExhaustedError struct {
	Key         string
	PrimaryErr  error
	FallbackErr error
}

// Error implements the error interface.
func (e *FallbackExhaustedError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("resilience: operation %q failed and fallback failed: %v (primary: %v)", e.Key, e.FallbackErr, e.PrimaryErr)
	}
	return fmt.Sprintf("resilience: fallback failed: %v (primary: %v)", e.FallbackErr, e.PrimaryErr)
}

// Unwrap exposes both causes to errors.Is and errors.As.
func (e *FallbackExhaustedError) Unwrap() []error {
	return []error{e.PrimaryErr, e.FallbackErr}
}
