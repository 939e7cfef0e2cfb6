package workflow

import "fmt"

// RouteError reports a routing decision that named a stage the graph does
// not define. It is fatal for the run; the partial state is still
// returned.
type RouteError struct {
	// Stage is the stage whose routing produced the bad target.
	Stage string

	// Target is what the route returned.
	Target string
}

func (e *RouteError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("workflow: stage %q routed to an empty target", e.Stage)
	}
	return fmt.Sprintf("workflow: stage %q routed to unknown stage %q", e.Stage, e.Target)
}

// StepLimitError reports a run that used up its step budget, which means
// the routing logic cycled. Fatal for the run; breaker state is untouched.
type StepLimitError struct {
	// RunID identifies the run that hit the limit.
	RunID string

	// Limit is the budget that was exceeded.
	Limit int
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("workflow: run %s exceeded the step limit of %d", e.RunID, e.Limit)
}
