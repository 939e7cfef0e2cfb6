package health

import "errors"

var (
	// ErrCheckFailed marks results produced without a working probe,
	// such as a failure rate checker with no record source.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout is set on a result when a checker outlives the
	// aggregator's per-check timeout. The checker's own result is
	// discarded.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound is returned by Aggregator.Check for names that
	// were never registered.
	ErrCheckerNotFound = errors.New("health: checker not found")
)
