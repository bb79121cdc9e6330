package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errService = errors.New("service down")

func failing(context.Context) error { return errService }
func passing(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, failing); !errors.Is(err, errService) {
			t.Fatalf("call %d: expected service error, got %v", i, err)
		}
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open circuit, got %s", cb.State())
	}
	if err := cb.Execute(ctx, passing); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}

	stats := cb.Stats()
	if stats.TotalRejected != 1 || stats.TotalFailures != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if rate := stats.FailureRate(); rate != 75 {
		t.Errorf("expected 75%% failure rate, got %f", rate)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open circuit, got %s", cb.State())
	}
	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(ctx, passing); err != nil {
		t.Fatalf("expected half-open trial to pass, got %v", err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open after one success, got %s", cb.State())
	}
	_ = cb.Execute(ctx, passing)
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after two successes, got %s", cb.State())
	}
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	notFound := errors.New("not found")
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 1,
		Timeout:          time.Hour,
		IsFailure:        func(err error) bool { return !errors.Is(err, notFound) },
	})

	v, err := ExecuteWithResult(cb, context.Background(), func(context.Context) (int, error) {
		return 0, notFound
	})
	if v != 0 || !errors.Is(err, notFound) {
		t.Fatalf("unexpected result %d, %v", v, err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("non-failure errors must not open the circuit")
	}

	cb.Reset()
	if cb.Name() != "test" || cb.State() != CircuitClosed {
		t.Errorf("unexpected breaker after reset: %s %s", cb.Name(), cb.State())
	}
}
