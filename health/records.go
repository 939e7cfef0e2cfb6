package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/stageflow/monitor"
)

// FailureRateCheckerConfig configures the execution failure rate checker.
type FailureRateCheckerConfig struct {
	// WarningRatio is the recent failure ratio that triggers degraded status.
	// Value should be between 0 and 1. Default: 0.25 (25%)
	WarningRatio float64

	// CriticalRatio is the recent failure ratio that triggers unhealthy status.
	// Value should be between 0 and 1. Default: 0.5 (50%)
	CriticalRatio float64

	// MinSample is the number of records required before the ratio is judged.
	// Below it the checker reports healthy. Default: 5
	MinSample int
}

// FailureRateChecker grades recent execution outcomes retained by a memory
// sink. Breaker transition records are excluded; they report state changes,
// not execution outcomes.
type FailureRateChecker struct {
	config FailureRateCheckerConfig
	source *monitor.Memory
}

// NewFailureRateChecker creates a checker over the given memory sink.
func NewFailureRateChecker(source *monitor.Memory, config FailureRateCheckerConfig) *FailureRateChecker {
	if config.WarningRatio <= 0 || config.WarningRatio >= 1 {
		config.WarningRatio = 0.25
	}
	if config.CriticalRatio <= 0 || config.CriticalRatio >= 1 {
		config.CriticalRatio = 0.5
	}
	if config.CriticalRatio < config.WarningRatio {
		config.CriticalRatio = config.WarningRatio
	}
	if config.MinSample <= 0 {
		config.MinSample = 5
	}

	return &FailureRateChecker{config: config, source: source}
}

// Check grades the failure ratio of recent executions.
func (c *FailureRateChecker) Check(ctx context.Context) Result {
	select {
	case <-ctx.Done():
		return Unhealthy("context cancelled", ctx.Err())
	default:
	}

	if c.source == nil {
		return Unhealthy("no record source", ErrCheckFailed)
	}

	var total, failed int
	for _, rec := range c.source.Snapshot() {
		if rec.MetaString(monitor.MetaKind) == monitor.KindTransition {
			continue
		}
		total++
		if !rec.Success {
			failed++
		}
	}

	details := map[string]any{
		"total":  total,
		"failed": failed,
	}

	if total < c.config.MinSample {
		return Healthy(fmt.Sprintf("%d executions observed", total)).WithDetails(details)
	}

	ratio := float64(failed) / float64(total)
	details["failure_ratio"] = ratio

	if ratio >= c.config.CriticalRatio {
		return Unhealthy(
			fmt.Sprintf("failure rate critical: %.0f%%", ratio*100),
			ErrCheckFailed,
		).WithDetails(details)
	}

	if ratio >= c.config.WarningRatio {
		return Degraded(
			fmt.Sprintf("failure rate high: %.0f%%", ratio*100),
		).WithDetails(details)
	}

	return Healthy(
		fmt.Sprintf("failure rate normal: %.0f%%", ratio*100),
	).WithDetails(details)
}
