// Package ratelimit provides the sliding-window limiter shared by all
// tagging workers in a run.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Limiter tracks the timestamps of the most recent API calls. When the
// window holds MaxCalls entries and the oldest is younger than Window, the
// next caller waits out the difference. One entry is recorded per API call,
// not per image. All methods are safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	calls    []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Limiter allowing maxCalls per rolling window.
func New(maxCalls int, window time.Duration) *Limiter {
	return &Limiter{
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Wait blocks until the caller may issue an API call, or until ctx is
// cancelled. It does not record the call; call Record after the request
// succeeds so the window reflects real issue order.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		var wait time.Duration
		if len(l.calls) >= l.maxCalls {
			age := l.now().Sub(l.calls[0])
			if age < l.window {
				wait = l.window - age
			}
		}
		l.mu.Unlock()

		if wait <= 0 {
			return nil
		}
		slog.Info("approaching rate limit, waiting", "wait", wait.Round(10*time.Millisecond))
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Record appends the current time to the window, evicting the oldest entry
// once the window is full.
func (l *Limiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, l.now())
	if len(l.calls) > l.maxCalls {
		l.calls = l.calls[1:]
	}
}

// Backoff handles an explicit rate-limit rejection from the API: sleep a
// full window, then clear every recorded call. The conservative global
// reset means all workers start from an empty window afterwards.
func (l *Limiter) Backoff(ctx context.Context) error {
	slog.Warn("rate limit hit, backing off", "wait", l.window)
	if err := l.sleep(ctx, l.window); err != nil {
		return err
	}
	l.mu.Lock()
	l.calls = l.calls[:0]
	l.mu.Unlock()
	return nil
}

// Len returns the number of calls currently in the window.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
