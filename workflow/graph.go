package workflow

import (
	"context"
	"fmt"
)

// Terminal is the routing sentinel that ends a run.
const Terminal = "terminal"

// defaultStepsPerStage sizes the step budget when GraphConfig.MaxSteps is
// zero: stages x defaultStepsPerStage.
const defaultStepsPerStage = 10

// StageFunc executes one stage. It receives a copy of the running state
// and returns an update the runner overlays onto the state. The update may
// be partial; returning nil means no change. A StageFunc may run several
// times per step when its key's retry policy says so.
type StageFunc func(ctx context.Context, state State) (State, error)

// RouteFunc selects the successor stage after a stage completes. It reads
// the live state and must treat it as read-only. It returns a stage key or
// Terminal, and must cope with the preceding stage having failed (its keys
// may be absent).
type RouteFunc func(state State) string

// Stage is one node in the graph.
type Stage struct {
	// Key names the stage. It doubles as the operation key the runner
	// executes under, so it must be registered with the coordinator.
	Key string

	// Run is the stage body.
	Run StageFunc

	// Next names the unconditional successor, or Terminal. Mutually
	// exclusive with Route.
	Next string

	// Route selects the successor from the state. Mutually exclusive with
	// Next. When neither is set the run stops after this stage.
	Route RouteFunc
}

// GraphConfig describes a stage topology.
type GraphConfig struct {
	// Entry is the stage every run starts at.
	Entry string

	// Stages is the fixed set of stages.
	Stages []Stage

	// MaxSteps caps the total stage executions in one run, so a routing
	// cycle cannot spin forever. Default: 10 per stage.
	MaxSteps int
}

// Graph is a validated, immutable stage topology.
type Graph struct {
	entry    string
	stages   map[string]Stage
	order    []string
	maxSteps int
}

// NewGraph validates the topology and returns a Graph. Every structural
// problem is a construction error: runs never fail on a malformed graph.
func NewGraph(cfg GraphConfig) (*Graph, error) {
	if len(cfg.Stages) == 0 {
		return nil, fmt.Errorf("workflow: graph needs at least one stage")
	}

	stages := make(map[string]Stage, len(cfg.Stages))
	order := make([]string, 0, len(cfg.Stages))
	for _, st := range cfg.Stages {
		if st.Key == "" {
			return nil, fmt.Errorf("workflow: stage key must not be empty")
		}
		if st.Key == Terminal {
			return nil, fmt.Errorf("workflow: stage key %q is reserved", Terminal)
		}
		if st.Run == nil {
			return nil, fmt.Errorf("workflow: stage %q has no run function", st.Key)
		}
		if st.Next != "" && st.Route != nil {
			return nil, fmt.Errorf("workflow: stage %q: Next and Route are mutually exclusive", st.Key)
		}
		if _, exists := stages[st.Key]; exists {
			return nil, fmt.Errorf("workflow: stage %q defined twice", st.Key)
		}
		stages[st.Key] = st
		order = append(order, st.Key)
	}

	if cfg.Entry == "" {
		return nil, fmt.Errorf("workflow: entry stage must be set")
	}
	if _, ok := stages[cfg.Entry]; !ok {
		return nil, fmt.Errorf("workflow: entry stage %q is not defined", cfg.Entry)
	}

	// Static successors resolve at construction time. Route targets can
	// only be checked when the route runs.
	for _, st := range cfg.Stages {
		if st.Next == "" || st.Next == Terminal {
			continue
		}
		if _, ok := stages[st.Next]; !ok {
			return nil, fmt.Errorf("workflow: stage %q: successor %q is not defined", st.Key, st.Next)
		}
	}

	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = len(cfg.Stages) * defaultStepsPerStage
	}

	return &Graph{
		entry:    cfg.Entry,
		stages:   stages,
		order:    order,
		maxSteps: maxSteps,
	}, nil
}

// Entry returns the entry stage key.
func (g *Graph) Entry() string {
	return g.entry
}

// Stages returns the stage keys in definition order.
func (g *Graph) Stages() []string {
	return append([]string(nil), g.order...)
}

// MaxSteps returns the per-run step budget.
func (g *Graph) MaxSteps() int {
	return g.maxSteps
}

// stage looks up a stage by key.
func (g *Graph) stage(key string) (Stage, bool) {
	st, ok := g.stages[key]
	return st, ok
}
