package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

// TestLogger_IncludesOpFields verifies operation fields are present in log output.
func TestLogger_IncludesOpFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	meta := OpMeta{
		Key:   "enrich-lead",
		Kind:  "stage",
		RunID: "run-42",
	}

	opLogger := logger.WithOp(meta)
	opLogger.Info(context.Background(), "test message")

	output := buf.String()

	// Parse JSON output
	var logEntry map[string]any
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v\nOutput: %s", err, output)
	}

	// Verify operation fields
	if v, ok := logEntry["op.key"].(string); !ok || v != "enrich-lead" {
		t.Errorf("expected op.key='enrich-lead', got %v", logEntry["op.key"])
	}
	if v, ok := logEntry["op.kind"].(string); !ok || v != "stage" {
		t.Errorf("expected op.kind='stage', got %v", logEntry["op.kind"])
	}
	if v, ok := logEntry["run.id"].(string); !ok || v != "run-42" {
		t.Errorf("expected run.id='run-42', got %v", logEntry["run.id"])
	}
}

// TestLogger_OmitsEmptyOpFields verifies optional fields are absent when unset.
func TestLogger_OmitsEmptyOpFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	opLogger := logger.WithOp(OpMeta{Key: "fetch"})
	opLogger.Info(context.Background(), "test message")

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}

	if _, ok := logEntry["op.kind"]; ok {
		t.Error("op.kind should be absent when unset")
	}
	if _, ok := logEntry["run.id"]; ok {
		t.Error("run.id should be absent when unset")
	}
}

// TestLogger_IncludesDuration verifies duration_ms field is present.
func TestLogger_IncludesDuration(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	opLogger := logger.WithOp(OpMeta{Key: "test-op"})

	opLogger.Info(context.Background(), "test message",
		Field{Key: "duration_ms", Value: 50.5},
	)

	output := buf.String()

	var logEntry map[string]any
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}

	if v, ok := logEntry["duration_ms"].(float64); !ok || v != 50.5 {
		t.Errorf("expected duration_ms=50.5, got %v", logEntry["duration_ms"])
	}
}

// TestLogger_ErrorLevel verifies error log level and error field.
func TestLogger_ErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	opLogger := logger.WithOp(OpMeta{Key: "error-op"})

	opLogger.Error(context.Background(), "execution failed",
		Field{Key: "error", Value: "connection timeout"},
	)

	output := buf.String()

	var logEntry map[string]any
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}

	// Verify level
	if v, ok := logEntry["level"].(string); !ok || v != "error" {
		t.Errorf("expected level='error', got %v", logEntry["level"])
	}

	// Verify error field
	if v, ok := logEntry["error"].(string); !ok || v != "connection timeout" {
		t.Errorf("expected error='connection timeout', got %v", logEntry["error"])
	}
}

// TestLogger_StateRedacted verifies pipeline state is never logged raw.
func TestLogger_StateRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	opLogger := logger.WithOp(OpMeta{Key: "sensitive-op"})

	opLogger.Info(context.Background(), "stage executed",
		Field{Key: "state", Value: "lead email: someone@example.com"},
	)

	output := buf.String()

	if strings.Contains(output, "someone@example.com") {
		t.Error("raw state should be redacted, but found in output")
	}
	if !strings.Contains(output, "[REDACTED]") {
		t.Error("expected redaction marker in output")
	}
}

// TestLogger_CredentialsRedacted verifies credential fields are redacted.
func TestLogger_CredentialsRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	opLogger := logger.WithOp(OpMeta{Key: "auth-op"})

	opLogger.Info(context.Background(), "operation executed",
		Field{Key: "token", Value: "secret_token_123"},
	)

	output := buf.String()

	if strings.Contains(output, "secret_token_123") {
		t.Error("raw token should be redacted, but found in output")
	}
}

// TestLogger_LevelFiltering verifies log level filtering.
func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)

	opLogger := logger.WithOp(OpMeta{Key: "filtered-op"})

	// Info should be filtered out
	opLogger.Info(context.Background(), "info message")

	output := buf.String()
	if strings.Contains(output, "info message") {
		t.Error("info message should be filtered when level is warn")
	}

	// Warn should pass through
	opLogger.Warn(context.Background(), "warn message")

	output = buf.String()
	if !strings.Contains(output, "warn message") {
		t.Error("warn message should pass through when level is warn")
	}
}

// TestLogger_DebugLevel verifies debug level filtering.
func TestLogger_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("debug", &buf)

	opLogger := logger.WithOp(OpMeta{Key: "debug-op"})

	opLogger.Debug(context.Background(), "debug message")

	output := buf.String()

	var logEntry map[string]any
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}

	if v, ok := logEntry["level"].(string); !ok || v != "debug" {
		t.Errorf("expected level='debug', got %v", logEntry["level"])
	}
}

// TestLogger_WarnLevel verifies warn level.
func TestLogger_WarnLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	opLogger := logger.WithOp(OpMeta{Key: "warn-op"})

	opLogger.Warn(context.Background(), "warning message")

	output := buf.String()

	var logEntry map[string]any
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}

	if v, ok := logEntry["level"].(string); !ok || v != "warn" {
		t.Errorf("expected level='warn', got %v", logEntry["level"])
	}
}

// TestParseLogLevel verifies level parsing with unknown input defaulting to info.
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}

	for _, tc := range tests {
		if got := ParseLogLevel(tc.in); got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
