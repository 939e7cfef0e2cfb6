package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewRetry(t *testing.T) {
	r := NewRetry(RetryConfig{})

	if r.config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", r.config.MaxAttempts)
	}
	if r.config.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %v, want 1s", r.config.BaseDelay)
	}
	if r.config.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want 30s", r.config.MaxDelay)
	}
	if r.config.BackoffFactor != 2.0 {
		t.Errorf("BackoffFactor = %f, want 2.0", r.config.BackoffFactor)
	}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_SuccessOnRetry(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	})

	attempts := 0
	testErr := errors.New("test error")

	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return testErr
		}
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_ExhaustedSurfacesLastError(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("attempt " + string(rune('0'+attempts)))
	})

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if err == nil || err.Error() != "attempt 3" {
		t.Errorf("Execute() error = %v, want the last attempt's error", err)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts: 10,
		BaseDelay:   100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())

	testErr := errors.New("test error")

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := r.Execute(ctx, func(ctx context.Context) error {
		return testErr
	})

	if err != context.Canceled {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
	// The backoff must be interrupted, not slept out.
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Execute() took %v, want prompt abort on cancellation", elapsed)
	}
}

func TestRetry_CancellationNotRetried(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
	})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return context.Canceled
	})

	if err != context.Canceled {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_CircuitOpenRetried(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return ErrCircuitOpen
	})

	// Admission refusals keep the sequence going; the attempts are cheap.
	if err != ErrCircuitOpen {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_RetryIf(t *testing.T) {
	retryableErr := errors.New("retryable")
	nonRetryableErr := errors.New("non-retryable")

	r := NewRetry(RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		RetryIf: func(err error) bool {
			return err == retryableErr
		},
	})

	t.Run("retryable error", func(t *testing.T) {
		attempts := 0
		err := r.Execute(context.Background(), func(ctx context.Context) error {
			attempts++
			return retryableErr
		})

		if err != retryableErr {
			t.Errorf("Execute() error = %v, want %v", err, retryableErr)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("non-retryable error", func(t *testing.T) {
		attempts := 0
		err := r.Execute(context.Background(), func(ctx context.Context) error {
			attempts++
			return nonRetryableErr
		})

		if err != nonRetryableErr {
			t.Errorf("Execute() error = %v, want %v", err, nonRetryableErr)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})
}

func TestRetry_OnRetry(t *testing.T) {
	var callbacks []struct {
		attempt int
		delay   time.Duration
	}

	r := NewRetry(RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			callbacks = append(callbacks, struct {
				attempt int
				delay   time.Duration
			}{attempt, delay})
		},
	})

	testErr := errors.New("test error")
	_ = r.Execute(context.Background(), func(ctx context.Context) error {
		return testErr
	})

	if len(callbacks) != 2 {
		t.Fatalf("callbacks = %d, want 2", len(callbacks))
	}
	if callbacks[0].attempt != 1 {
		t.Errorf("First callback attempt = %d, want 1", callbacks[0].attempt)
	}
	// Exponential schedule: base x factor^0, then base x factor^1.
	if callbacks[0].delay != 10*time.Millisecond {
		t.Errorf("First delay = %v, want 10ms", callbacks[0].delay)
	}
	if callbacks[1].delay != 20*time.Millisecond {
		t.Errorf("Second delay = %v, want 20ms", callbacks[1].delay)
	}
}

func TestRetry_CalculateDelay(t *testing.T) {
	t.Run("exponential growth", func(t *testing.T) {
		r := NewRetry(RetryConfig{
			MaxAttempts:   4,
			BaseDelay:     10 * time.Millisecond,
			BackoffFactor: 2.0,
		})

		// Delay after attempt 3 should be 10ms * 2^2 = 40ms
		delay := r.calculateDelay(3)
		if delay != 40*time.Millisecond {
			t.Errorf("Delay for attempt 3 = %v, want 40ms", delay)
		}
	})

	t.Run("custom factor", func(t *testing.T) {
		r := NewRetry(RetryConfig{
			MaxAttempts:   4,
			BaseDelay:     time.Millisecond,
			BackoffFactor: 3.0,
		})

		delay := r.calculateDelay(3)
		if delay != 9*time.Millisecond {
			t.Errorf("Delay for attempt 3 = %v, want 9ms", delay)
		}
	})

	t.Run("max delay cap", func(t *testing.T) {
		r := NewRetry(RetryConfig{
			MaxAttempts:   10,
			BaseDelay:     time.Second,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 10.0,
		})

		// Delay should be capped at 5s
		delay := r.calculateDelay(5)
		if delay != 5*time.Second {
			t.Errorf("Capped delay = %v, want 5s", delay)
		}
	})
}

func TestRetry_ExecuteWithFallback(t *testing.T) {
	testErr := errors.New("primary down")
	fbErr := errors.New("fallback down")

	t.Run("primary succeeds", func(t *testing.T) {
		r := NewRetry(RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond})

		fallbackCalled := false
		err := r.ExecuteWithFallback(context.Background(),
			func(ctx context.Context) error { return nil },
			func(ctx context.Context) error { fallbackCalled = true; return nil },
		)

		if err != nil {
			t.Errorf("ExecuteWithFallback() error = %v", err)
		}
		if fallbackCalled {
			t.Error("Fallback ran even though primary succeeded")
		}
	})

	t.Run("fallback rescues", func(t *testing.T) {
		r := NewRetry(RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond})

		attempts := 0
		err := r.ExecuteWithFallback(context.Background(),
			func(ctx context.Context) error { attempts++; return testErr },
			func(ctx context.Context) error { return nil },
		)

		if err != nil {
			t.Errorf("ExecuteWithFallback() error = %v", err)
		}
		if attempts != 2 {
			t.Errorf("primary attempts = %d, want 2", attempts)
		}
	})

	t.Run("both fail", func(t *testing.T) {
		r := NewRetry(RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond})

		err := r.ExecuteWithFallback(context.Background(),
			func(ctx context.Context) error { return testErr },
			func(ctx context.Context) error { return fbErr },
		)

		var fe *FallbackExhaustedError
		if !errors.As(err, &fe) {
			t.Fatalf("ExecuteWithFallback() error = %T, want *FallbackExhaustedError", err)
		}
		if fe.PrimaryErr != testErr {
			t.Errorf("PrimaryErr = %v, want %v", fe.PrimaryErr, testErr)
		}
		if fe.FallbackErr != fbErr {
			t.Errorf("FallbackErr = %v, want %v", fe.FallbackErr, fbErr)
		}
		if !errors.Is(err, testErr) || !errors.Is(err, fbErr) {
			t.Error("errors.Is should match both wrapped causes")
		}
	})
}

func TestRetry_Config(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts: 5,
	})

	config := r.Config()
	if config.MaxAttempts != 5 {
		t.Errorf("Config().MaxAttempts = %d, want 5", config.MaxAttempts)
	}
}
