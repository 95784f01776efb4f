package services

import (
	"context"
	"sync"
	"time"

	"relaygate/internal/core/domain"
)

type windowKey struct {
	actorID domain.ActorID
	channel string
}

type rateWindow struct {
	timestamps []time.Time
}

// SlidingWindowLimiter admits publish events per (actor, channel) over a
// fixed window: timestamps older than the window are pruned on each check and
// a new timestamp is recorded only on accept. Windows are created lazily and
// swept when idle.
type SlidingWindowLimiter struct {
	mu      sync.Mutex
	windows map[windowKey]*rateWindow

	limit  int
	window time.Duration

	now func() time.Time
}

// NewSlidingWindowLimiter builds a limiter with the given per-window limit.
func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		windows: make(map[windowKey]*rateWindow),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Admit reports whether one more publish is allowed for the pair right now.
func (l *SlidingWindowLimiter) Admit(actorID domain.ActorID, channelSlug string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := windowKey{actorID: actorID, channel: channelSlug}

	w, ok := l.windows[key]
	if !ok {
		w = &rateWindow{}
		l.windows[key] = w
	}

	cutoff := now.Add(-l.window)
	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.timestamps = kept

	if len(w.timestamps) >= l.limit {
		return false
	}

	w.timestamps = append(w.timestamps, now)
	return true
}

// Sweep drops windows with no activity inside the idle horizon. Returns the
// number of evicted windows.
func (l *SlidingWindowLimiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	evicted := 0
	for key, w := range l.windows {
		if len(w.timestamps) == 0 || !w.timestamps[len(w.timestamps)-1].After(cutoff) {
			delete(l.windows, key)
			evicted++
		}
	}
	return evicted
}

// WindowCount returns the number of live windows.
func (l *SlidingWindowLimiter) WindowCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// StartJanitor sweeps idle windows until the context ends. Idle horizon is
// five windows, matching the lazy-creation contract: a quiet pair costs
// nothing after the sweep.
func (l *SlidingWindowLimiter) StartJanitor(ctx context.Context) {
	interval := l.window
	idle := 5 * l.window

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep(idle)
			}
		}
	}()
}
