package monitor

import (
	"context"
	"time"
)

// Record is one observation of a completed execution: a resilient operation
// call, a pipeline stage, a breaker transition, or a whole run.
type Record struct {
	// Key is the operation key the record belongs to. Pipeline stages use
	// the stage name; run-level records use the pipeline name.
	Key string

	// Duration covers the whole observed execution, attempts and fallback
	// included.
	Duration time.Duration

	// Success reports the terminal outcome.
	Success bool

	// Error holds the terminal error message. Empty on success.
	Error string

	// Meta carries emitter-specific context. See the Meta* and Kind*
	// constants for the keys the pipeline runner and coordinator use.
	Meta map[string]any

	// Time is when the execution finished.
	Time time.Time
}

// Well-known Meta keys shared between emitters and sinks.
const (
	// MetaKind classifies the record; see the Kind* constants.
	MetaKind = "kind"

	// MetaRunID carries the run identifier on stage and run records.
	MetaRunID = "run_id"

	// MetaStage carries the stage name on stage records.
	MetaStage = "stage"

	// MetaAttempts carries the attempt count on operation records.
	MetaAttempts = "attempts"

	// MetaSteps carries the executed stage count on run records.
	MetaSteps = "steps"

	// MetaFallback marks operation records whose outcome came from a
	// fallback.
	MetaFallback = "fallback"

	// MetaFrom and MetaTo carry the breaker states on transition records.
	MetaFrom = "from"
	MetaTo   = "to"
)

// Record kinds.
const (
	// KindOperation is a coordinator terminal outcome.
	KindOperation = "operation"

	// KindTransition is a circuit breaker state change.
	KindTransition = "transition"

	// KindStage is one stage execution within a run.
	KindStage = "stage"

	// KindRun is a run-level summary.
	KindRun = "run"
)

// MetaString returns the string value stored under the given Meta key, or
// "" when the key is absent or holds a non-string.
func (r Record) MetaString(key string) string {
	v, ok := r.Meta[key].(string)
	if !ok {
		return ""
	}
	return v
}

// Monitor ingests execution records.
//
// Contract: Record is fire-and-forget. Implementations must be safe for
// concurrent use, must not block the caller beyond trivial bookkeeping, and
// must swallow their own failures; a misbehaving sink never fails the
// execution that produced the record.
type Monitor interface {
	Record(ctx context.Context, rec Record)
}

// Func adapts a plain function to the Monitor interface.
type Func func(ctx context.Context, rec Record)

// Record implements Monitor.
func (f Func) Record(ctx context.Context, rec Record) {
	f(ctx, rec)
}

// Nop discards all records.
func Nop() Monitor {
	return nopMonitor{}
}

type nopMonitor struct{}

func (nopMonitor) Record(context.Context, Record) {}

// Multi fans records out to every sink. A panicking sink is absorbed and
// the remaining sinks still receive the record.
func Multi(sinks ...Monitor) Monitor {
	ms := make([]Monitor, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			ms = append(ms, s)
		}
	}
	return &multiMonitor{sinks: ms}
}

type multiMonitor struct {
	sinks []Monitor
}

func (m *multiMonitor) Record(ctx context.Context, rec Record) {
	for _, s := range m.sinks {
		dispatch(ctx, s, rec)
	}
}

func dispatch(ctx context.Context, s Monitor, rec Record) {
	defer func() {
		_ = recover()
	}()
	s.Record(ctx, rec)
}
