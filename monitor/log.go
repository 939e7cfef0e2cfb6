package monitor

import (
	"context"

	"github.com/jonwraymond/stageflow/observe"
)

// LogMonitor writes one structured log line per record. Successful
// executions log at info, failed ones at warn.
type LogMonitor struct {
	logger observe.Logger
}

// NewLogMonitor wraps the given logger. A nil logger is replaced with a
// noop so the sink is always safe to call.
func NewLogMonitor(logger observe.Logger) *LogMonitor {
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &LogMonitor{logger: logger}
}

// Record implements Monitor.
func (l *LogMonitor) Record(ctx context.Context, rec Record) {
	fields := make([]observe.Field, 0, len(rec.Meta)+3)
	fields = append(fields,
		observe.Field{Key: "duration_ms", Value: durationMillis(rec)},
		observe.Field{Key: "success", Value: rec.Success},
	)
	for k, v := range rec.Meta {
		// The kind and run id ride on the bound operation metadata.
		if k == MetaKind || k == MetaRunID {
			continue
		}
		fields = append(fields, observe.Field{Key: k, Value: v})
	}

	logger := l.logger.WithOp(executionMeta(rec))
	if rec.Success {
		logger.Info(ctx, "execution recorded", fields...)
		return
	}
	fields = append(fields, observe.Field{Key: "error", Value: rec.Error})
	logger.Warn(ctx, "execution failed", fields...)
}

func durationMillis(rec Record) float64 {
	return float64(rec.Duration.Microseconds()) / 1000.0
}

// Ensure LogMonitor implements Monitor
var _ Monitor = (*LogMonitor)(nil)
