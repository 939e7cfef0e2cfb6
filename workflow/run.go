package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/stageflow/monitor"
	"github.com/jonwraymond/stageflow/observe"
	"github.com/jonwraymond/stageflow/resilience"
)

// Runner drives runs through a graph. Every stage executes under the
// coordinator's resilience policy for the stage key, so breaker, retry,
// fallback, and admission limits all apply per stage.
type Runner struct {
	graph   *Graph
	coord   *resilience.Coordinator[State, State]
	name    string
	logger  observe.Logger
	tracer  observe.Tracer
	monitor monitor.Monitor
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithName sets the pipeline name used on run-level records and logs.
// Default: "pipeline".
func WithName(name string) RunnerOption {
	return func(r *Runner) {
		if name != "" {
			r.name = name
		}
	}
}

// WithLogger sets the structured logger for stage and run events.
func WithLogger(l observe.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTracer wraps every stage execution in a span.
func WithTracer(t observe.Tracer) RunnerOption {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithMonitor sets the sink receiving stage and run records.
func WithMonitor(m monitor.Monitor) RunnerOption {
	return func(r *Runner) {
		if m != nil {
			r.monitor = m
		}
	}
}

// NewRunner binds a graph to a coordinator. Every stage key must already be
// registered with the coordinator; a missing key fails here, at startup,
// rather than mid-run.
func NewRunner(graph *Graph, coord *resilience.Coordinator[State, State], opts ...RunnerOption) (*Runner, error) {
	if graph == nil {
		return nil, fmt.Errorf("workflow: graph must not be nil")
	}
	if coord == nil {
		return nil, fmt.Errorf("workflow: coordinator must not be nil")
	}

	r := &Runner{
		graph:   graph,
		coord:   coord,
		name:    "pipeline",
		logger:  observe.NopLogger(),
		tracer:  observe.NewNoopTracer(),
		monitor: monitor.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, key := range graph.Stages() {
		if !coord.Has(key) {
			return nil, &resilience.UnregisteredOperationError{Key: key}
		}
	}

	return r, nil
}

// Name returns the pipeline name.
func (r *Runner) Name() string {
	return r.name
}

// Run advances state through the graph from the entry stage until routing
// reaches Terminal or a stage has no successor. The initial state is not
// mutated; the returned state carries the run id, the step count, and the
// absorbed failures.
//
// A stage failure does not abort the run: the failure lands on the state's
// error list, the stage's update is discarded, and routing continues on
// the state as-is. Fatal errors stop the run and come back alongside the
// partial state: a route to an unknown stage (RouteError), an exhausted
// step budget (StepLimitError), and cancellation. A cancelled run returns
// the partial state tagged under KeyCancelled together with ctx.Err().
func (r *Runner) Run(ctx context.Context, initial State) (State, error) {
	runID := uuid.NewString()

	state := initial.Clone()
	state[KeyRunID] = runID
	state[KeySteps] = 0
	state[KeyErrors] = []StageError{}

	logger := r.logger.WithOp(observe.OpMeta{Key: r.name, Kind: "run", RunID: runID})
	logger.Info(ctx, "run started", observe.Field{Key: "entry", Value: r.graph.Entry()})

	start := time.Now()
	st := r.graph.stages[r.graph.Entry()]

	for {
		if ctx.Err() != nil {
			state[KeyCancelled] = true
			return r.finish(ctx, logger, runID, state, start, ctx.Err())
		}
		if state.Steps() >= r.graph.MaxSteps() {
			err := &StepLimitError{RunID: runID, Limit: r.graph.MaxSteps()}
			return r.finish(ctx, logger, runID, state, start, err)
		}

		state[KeySteps] = state.Steps() + 1

		update, err := r.executeStage(ctx, runID, st, state)
		if err != nil {
			// Cancellation surfacing through a stage ends the run; any
			// other failure is absorbed and routing decides what is next.
			if ctx.Err() != nil {
				state[KeyCancelled] = true
				return r.finish(ctx, logger, runID, state, start, ctx.Err())
			}
			state.appendError(st.Key, err)
		} else {
			state.merge(update)
		}

		next := Terminal
		switch {
		case st.Route != nil:
			next = st.Route(state)
		case st.Next != "":
			next = st.Next
		}
		if next == Terminal {
			return r.finish(ctx, logger, runID, state, start, nil)
		}

		nst, ok := r.graph.stage(next)
		if !ok {
			err := &RouteError{Stage: st.Key, Target: next}
			return r.finish(ctx, logger, runID, state, start, err)
		}
		st = nst
	}
}

// executeStage runs one stage through the coordinator, wrapped in a span,
// a log pair, and a stage record.
func (r *Runner) executeStage(ctx context.Context, runID string, st Stage, state State) (State, error) {
	meta := observe.OpMeta{Key: st.Key, Kind: "stage", RunID: runID}
	logger := r.logger.WithOp(meta)

	sctx, span := r.tracer.StartSpan(ctx, meta)
	logger.Debug(sctx, "stage started")

	start := time.Now()
	update, err := r.coord.Execute(sctx, st.Key, resilience.Operation[State, State](st.Run), state.Clone())
	duration := time.Since(start)

	r.tracer.EndSpan(span, err)

	if err != nil {
		logger.Error(sctx, "stage failed",
			observe.Field{Key: "duration_ms", Value: float64(duration.Milliseconds())},
			observe.Field{Key: "error", Value: err.Error()},
		)
	} else {
		logger.Info(sctx, "stage completed",
			observe.Field{Key: "duration_ms", Value: float64(duration.Milliseconds())},
		)
	}

	rec := monitor.Record{
		Key:      st.Key,
		Duration: duration,
		Success:  err == nil,
		Meta: map[string]any{
			monitor.MetaKind:  monitor.KindStage,
			monitor.MetaRunID: runID,
			monitor.MetaStage: st.Key,
		},
		Time: time.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	r.record(sctx, rec)

	return update, err
}

// finish emits the run-level record and log, then hands back the state.
func (r *Runner) finish(ctx context.Context, logger observe.Logger, runID string, state State, start time.Time, err error) (State, error) {
	duration := time.Since(start)

	rec := monitor.Record{
		Key:      r.name,
		Duration: duration,
		Success:  err == nil,
		Meta: map[string]any{
			monitor.MetaKind:  monitor.KindRun,
			monitor.MetaRunID: runID,
			monitor.MetaSteps: state.Steps(),
		},
		Time: time.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	r.record(ctx, rec)

	if err != nil {
		logger.Error(ctx, "run failed",
			observe.Field{Key: "duration_ms", Value: float64(duration.Milliseconds())},
			observe.Field{Key: "steps", Value: state.Steps()},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return state, err
	}

	logger.Info(ctx, "run completed",
		observe.Field{Key: "duration_ms", Value: float64(duration.Milliseconds())},
		observe.Field{Key: "steps", Value: state.Steps()},
		observe.Field{Key: "stage_errors", Value: len(state.Errors())},
	)
	return state, nil
}

// record delivers a record without letting the sink fail the run.
func (r *Runner) record(ctx context.Context, rec monitor.Record) {
	defer func() {
		_ = recover()
	}()
	r.monitor.Record(ctx, rec)
}
