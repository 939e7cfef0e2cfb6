package health

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jonwraymond/stageflow/resilience"
)

// NewBreakerChecker reports the health of a coordinator's circuit breakers.
// All breakers closed reads as healthy. Any open or half-open breaker
// degrades the result, with per-key states in the details.
func NewBreakerChecker[A, R any](coord *resilience.Coordinator[A, R]) Checker {
	return CheckerFunc(func(_ context.Context) Result {
		summary := coord.HealthSummary()

		details := make(map[string]any, len(summary.States))
		notClosed := make([]string, 0)
		for key, state := range summary.States {
			details[key] = state.String()
			if state != resilience.StateClosed {
				notClosed = append(notClosed, key)
			}
		}

		if summary.Healthy {
			return Healthy(fmt.Sprintf("all %d breakers closed", len(summary.States))).
				WithDetails(details)
		}

		sort.Strings(notClosed)
		return Degraded("breakers not closed: " + strings.Join(notClosed, ", ")).
			WithDetails(details)
	})
}
