package health

import (
	"context"
	"strings"
	"testing"

	"github.com/jonwraymond/stageflow/monitor"
)

func recordOutcomes(mem *monitor.Memory, successes, failures int) {
	for i := 0; i < successes; i++ {
		mem.Record(context.Background(), monitor.Record{Key: "op", Success: true})
	}
	for i := 0; i < failures; i++ {
		mem.Record(context.Background(), monitor.Record{Key: "op", Success: false, Error: "boom"})
	}
}

func TestFailureRateChecker_HealthyBelowWarning(t *testing.T) {
	mem := monitor.NewMemory(64)
	recordOutcomes(mem, 9, 1)

	result := NewFailureRateChecker(mem, FailureRateCheckerConfig{}).Check(context.Background())

	if result.Status != StatusHealthy {
		t.Errorf("Status = %v, want StatusHealthy at 10%% failures", result.Status)
	}
	if result.Details["total"] != 10 {
		t.Errorf("Details[total] = %v, want 10", result.Details["total"])
	}
	if result.Details["failed"] != 1 {
		t.Errorf("Details[failed] = %v, want 1", result.Details["failed"])
	}
}

func TestFailureRateChecker_DegradedAboveWarning(t *testing.T) {
	mem := monitor.NewMemory(64)
	recordOutcomes(mem, 7, 3)

	result := NewFailureRateChecker(mem, FailureRateCheckerConfig{}).Check(context.Background())

	if result.Status != StatusDegraded {
		t.Errorf("Status = %v, want StatusDegraded at 30%% failures", result.Status)
	}
	if !strings.Contains(result.Message, "failure rate high") {
		t.Errorf("Message = %q, want failure rate high", result.Message)
	}
}

func TestFailureRateChecker_UnhealthyAtCritical(t *testing.T) {
	mem := monitor.NewMemory(64)
	recordOutcomes(mem, 5, 5)

	result := NewFailureRateChecker(mem, FailureRateCheckerConfig{}).Check(context.Background())

	if result.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want StatusUnhealthy at 50%% failures", result.Status)
	}
	if result.Error != ErrCheckFailed {
		t.Errorf("Error = %v, want ErrCheckFailed", result.Error)
	}
}

func TestFailureRateChecker_SmallSampleStaysHealthy(t *testing.T) {
	mem := monitor.NewMemory(64)
	recordOutcomes(mem, 0, 3)

	result := NewFailureRateChecker(mem, FailureRateCheckerConfig{}).Check(context.Background())

	if result.Status != StatusHealthy {
		t.Errorf("Status = %v, want StatusHealthy below the minimum sample", result.Status)
	}
	if !strings.Contains(result.Message, "3 executions observed") {
		t.Errorf("Message = %q, want observation count", result.Message)
	}
}

func TestFailureRateChecker_SkipsTransitionRecords(t *testing.T) {
	mem := monitor.NewMemory(64)
	recordOutcomes(mem, 5, 0)
	for i := 0; i < 5; i++ {
		mem.Record(context.Background(), monitor.Record{
			Key:     "op",
			Success: false,
			Meta:    map[string]any{monitor.MetaKind: monitor.KindTransition},
		})
	}

	result := NewFailureRateChecker(mem, FailureRateCheckerConfig{}).Check(context.Background())

	if result.Status != StatusHealthy {
		t.Errorf("Status = %v, want StatusHealthy with only transition failures", result.Status)
	}
	if result.Details["total"] != 5 {
		t.Errorf("Details[total] = %v, want 5", result.Details["total"])
	}
}

func TestFailureRateChecker_NilSource(t *testing.T) {
	result := NewFailureRateChecker(nil, FailureRateCheckerConfig{}).Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want StatusUnhealthy without a source", result.Status)
	}
}

func TestFailureRateChecker_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewFailureRateChecker(monitor.NewMemory(16), FailureRateCheckerConfig{}).Check(ctx)
	if result.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want StatusUnhealthy on cancelled context", result.Status)
	}
}

func TestFailureRateChecker_ConfigDefaults(t *testing.T) {
	checker := NewFailureRateChecker(monitor.NewMemory(4), FailureRateCheckerConfig{
		WarningRatio:  -1,
		CriticalRatio: 2,
	})

	if checker.config.WarningRatio != 0.25 {
		t.Errorf("WarningRatio = %v, want 0.25", checker.config.WarningRatio)
	}
	if checker.config.CriticalRatio != 0.5 {
		t.Errorf("CriticalRatio = %v, want 0.5", checker.config.CriticalRatio)
	}
	if checker.config.MinSample != 5 {
		t.Errorf("MinSample = %v, want 5", checker.config.MinSample)
	}
}

func TestFailureRateChecker_CriticalNotBelowWarning(t *testing.T) {
	checker := NewFailureRateChecker(monitor.NewMemory(4), FailureRateCheckerConfig{
		WarningRatio:  0.6,
		CriticalRatio: 0.3,
	})

	if checker.config.CriticalRatio != 0.6 {
		t.Errorf("CriticalRatio = %v, want clamped to WarningRatio 0.6", checker.config.CriticalRatio)
	}
}
