package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func TestExecute_OpensAfterFailureThreshold(t *testing.T) {
	cb := New(Config{
		FailureThreshold:    3,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		MaxRequestsHalfOpen: 1,
	})

	boom := errors.New("downstream failure")
	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected raw error, got %v", i+1, err)
		}
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("expected open state after threshold, got %v", cb.GetState())
	}

	err := cb.Execute(func() error {
		t.Fatal("function must not run while open")
		return nil
	})
	var open *ErrOpen
	if !errors.As(err, &open) {
		t.Errorf("expected ErrOpen while open, got %v", err)
	}
}

func TestExecute_SuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		MaxRequestsHalfOpen: 1,
	})

	boom := errors.New("flaky")
	cb.Execute(func() error { return boom })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return boom })

	if cb.GetState() != StateClosed {
		t.Errorf("expected closed state with interleaved successes, got %v", cb.GetState())
	}
}

func TestReset_ClosesBreaker(t *testing.T) {
	cb := New(Config{
		FailureThreshold:    1,
		SuccessThreshold:    1,
		Timeout:             time.Hour,
		MaxRequestsHalfOpen: 1,
	})

	cb.Execute(func() error { return errors.New("down") })
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got %v", cb.GetState())
	}

	cb.Reset()
	if cb.GetState() != StateClosed {
		t.Errorf("expected closed after reset, got %v", cb.GetState())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("expected success after reset, got %v", err)
	}
}
