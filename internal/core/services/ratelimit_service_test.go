package services

import (
	"context"
	"testing"
	"time"
)

func TestSlidingWindowLimiter_AdmitsUpToLimit(t *testing.T) {
	now := time.Now()
	limiter := NewSlidingWindowLimiter(3, time.Minute)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !limiter.Admit("actor", "general") {
			t.Fatalf("attempt %d should be admitted", i+1)
		}
	}
	if limiter.Admit("actor", "general") {
		t.Error("attempt over the limit should be denied")
	}
}

func TestSlidingWindowLimiter_DeniedAttemptNotRecorded(t *testing.T) {
	now := time.Now()
	limiter := NewSlidingWindowLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }

	limiter.Admit("actor", "general")
	limiter.Admit("actor", "general")

	// Hammer denied attempts; they must not extend the window.
	for i := 0; i < 10; i++ {
		limiter.Admit("actor", "general")
	}

	// Once the two accepted events age out, the actor is admitted again.
	now = now.Add(61 * time.Second)
	if !limiter.Admit("actor", "general") {
		t.Error("expected admission after the window expired")
	}
}

func TestSlidingWindowLimiter_WindowSlides(t *testing.T) {
	now := time.Now()
	limiter := NewSlidingWindowLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }

	limiter.Admit("actor", "general") // t=0
	now = now.Add(40 * time.Second)
	limiter.Admit("actor", "general") // t=40

	now = now.Add(25 * time.Second) // t=65: first event aged out
	if !limiter.Admit("actor", "general") {
		t.Error("expected admission after oldest event left the window")
	}
	if limiter.Admit("actor", "general") {
		t.Error("expected denial with two events still inside the window")
	}
}

func TestSlidingWindowLimiter_PairsIndependent(t *testing.T) {
	now := time.Now()
	limiter := NewSlidingWindowLimiter(1, time.Minute)
	limiter.now = func() time.Time { return now }

	if !limiter.Admit("actor", "general") {
		t.Fatal("first pair should be admitted")
	}
	if limiter.Admit("actor", "general") {
		t.Error("same pair should be denied")
	}
	if !limiter.Admit("actor", "lounge") {
		t.Error("different channel should have its own window")
	}
	if !limiter.Admit("other", "general") {
		t.Error("different actor should have its own window")
	}
}

func TestSlidingWindowLimiter_SweepDropsIdleWindows(t *testing.T) {
	now := time.Now()
	limiter := NewSlidingWindowLimiter(10, time.Minute)
	limiter.now = func() time.Time { return now }

	limiter.Admit("a1", "general")
	limiter.Admit("a2", "general")
	if limiter.WindowCount() != 2 {
		t.Fatalf("expected 2 windows, got %d", limiter.WindowCount())
	}

	now = now.Add(2 * time.Minute)
	limiter.Admit("a1", "general") // refresh one pair

	now = now.Add(4 * time.Minute)
	evicted := limiter.Sweep(5 * time.Minute)
	if evicted != 1 {
		t.Errorf("expected 1 idle window evicted, got %d", evicted)
	}
	if limiter.WindowCount() != 1 {
		t.Errorf("expected 1 window to survive, got %d", limiter.WindowCount())
	}
}

func TestStartJanitor_ReturnsAndSweepsInBackground(t *testing.T) {
	limiter := NewSlidingWindowLimiter(5, 10*time.Millisecond)
	limiter.Admit("actor", "general")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// StartJanitor spawns its own goroutine; the call itself must not block.
	done := make(chan struct{})
	go func() {
		limiter.StartJanitor(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StartJanitor must return immediately")
	}

	deadline := time.Now().Add(2 * time.Second)
	for limiter.WindowCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected the janitor to sweep the idle window, still %d live", limiter.WindowCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
