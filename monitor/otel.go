package monitor

import (
	"context"
	"errors"

	"github.com/jonwraymond/stageflow/observe"
)

// OTelMonitor forwards records to the OpenTelemetry execution instruments:
// a call counter, an error counter, and a duration histogram, all labelled
// with the operation key and kind.
type OTelMonitor struct {
	metrics observe.Metrics
}

// NewOTelMonitor wraps the given instruments. A nil Metrics is replaced with
// a noop so the sink is always safe to call.
func NewOTelMonitor(metrics observe.Metrics) *OTelMonitor {
	if metrics == nil {
		metrics = observe.NopMetrics()
	}
	return &OTelMonitor{metrics: metrics}
}

// Record implements Monitor. Records without an operation key are skipped;
// there is nothing meaningful to label them with.
func (o *OTelMonitor) Record(ctx context.Context, rec Record) {
	meta := executionMeta(rec)
	if err := meta.Validate(); err != nil {
		return
	}

	var execErr error
	if !rec.Success {
		execErr = errors.New(rec.Error)
	}
	o.metrics.RecordExecution(ctx, meta, rec.Duration, execErr)
}

// executionMeta lifts the well-known Meta keys into operation metadata.
func executionMeta(rec Record) observe.OpMeta {
	return observe.OpMeta{
		Key:   rec.Key,
		Kind:  rec.MetaString(MetaKind),
		RunID: rec.MetaString(MetaRunID),
	}
}

// Ensure OTelMonitor implements Monitor
var _ Monitor = (*OTelMonitor)(nil)
