package resilience

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrCircuitOpen", ErrCircuitOpen},
		{"ErrRateLimitExceeded", ErrRateLimitExceeded},
		{"ErrBulkheadFull", ErrBulkheadFull},
		{"ErrTimeout", ErrTimeout},
		{"ErrNoLastGood", ErrNoLastGood},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Fatalf("%s is nil", tt.name)
			}
			if !strings.HasPrefix(tt.err.Error(), "resilience: ") {
				t.Errorf("%s = %q, want resilience: prefix", tt.name, tt.err.Error())
			}
		})
	}
}

func TestTransient(t *testing.T) {
	base := errors.New("connection reset")

	wrapped := Transient(base)
	if !IsTransient(wrapped) {
		t.Error("IsTransient(Transient(err)) = false, want true")
	}
	if !errors.Is(wrapped, base) {
		t.Error("Transient should preserve the underlying error")
	}

	if IsTransient(base) {
		t.Error("IsTransient(plain error) = true, want false")
	}
	if IsTransient(nil) {
		t.Error("IsTransient(nil) = true, want false")
	}
	if Transient(nil) != nil {
		t.Error("Transient(nil) should be nil")
	}

	// Marker survives further wrapping.
	deep := fmt.Errorf("fetch: %w", wrapped)
	if !IsTransient(deep) {
		t.Error("IsTransient should see through wrapping")
	}
}

func TestUnregisteredOperationError(t *testing.T) {
	err := &UnregisteredOperationError{Key: "fetch-user"}

	if !strings.Contains(err.Error(), `"fetch-user"`) {
		t.Errorf("Error() = %q, want the key quoted", err.Error())
	}

	var ue *UnregisteredOperationError
	if !errors.As(fmt.Errorf("run: %w", err), &ue) {
		t.Error("errors.As should find UnregisteredOperationError through wrapping")
	}
	if ue.Key != "fetch-user" {
		t.Errorf("Key = %q, want %q", ue.Key, "fetch-user")
	}
}

func TestFallbackExhaustedError(t *testing.T) {
	primary := errors.New("primary down")
	fallback := errors.New("fallback down")

	err := &FallbackExhaustedError{Key: "enrich", PrimaryErr: primary, FallbackErr: fallback}

	if !errors.Is(err, primary) {
		t.Error("errors.Is should match the primary cause")
	}
	if !errors.Is(err, fallback) {
		t.Error("errors.Is should match the fallback cause")
	}
	if !strings.Contains(err.Error(), "enrich") {
		t.Errorf("Error() = %q, want the key included", err.Error())
	}
	if !strings.Contains(err.Error(), "primary down") || !strings.Contains(err.Error(), "fallback down") {
		t.Errorf("Error() = %q, want both causes included", err.Error())
	}

	// The key is optional for ad hoc use.
	bare := &FallbackExhaustedError{PrimaryErr: primary, FallbackErr: fallback}
	if strings.Contains(bare.Error(), `""`) {
		t.Errorf("Error() = %q, empty key should be omitted", bare.Error())
	}
}
