// Package ratelimit bounds outbound model API calls shared across all session pipelines.
//
// The limiter enforces two constraints at once: at most limit grants in any rolling
// window, and at least spacing between consecutive grants. Callers block in Acquire
// until their slot arrives; slots are handed out in call order, so no caller can be
// starved by later arrivals.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Acquire after Close, typically during process shutdown.
var ErrClosed = errors.New("ratelimit: limiter closed")

// Limiter is a process-wide gate for outbound model API calls.
type Limiter struct {
	limit   int
	window  time.Duration
	spacing time.Duration

	mu     sync.Mutex
	grants []time.Time // reservation instants, ascending; at most limit entries kept

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a limiter allowing limit grants per rolling window, with at least
// spacing between consecutive grants.
func New(limit int, window, spacing time.Duration) *Limiter {
	if limit < 1 {
		limit = 1
	}
	return &Limiter{
		limit:   limit,
		window:  window,
		spacing: spacing,
		closed:  make(chan struct{}),
	}
}

// Acquire blocks until the caller may make one outbound call. It returns
// ctx.Err() if the context is cancelled first, or ErrClosed after Close.
// Acquire never rejects for load reasons; it only waits.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case <-l.closed:
		return ErrClosed
	default:
	}

	l.mu.Lock()
	at := l.reserve(time.Now())
	l.mu.Unlock()

	wait := time.Until(at)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		// The reservation is not released: the window bound still holds with
		// one fewer call made. Cancellation is expected only on shutdown paths.
		return ctx.Err()
	case <-l.closed:
		return ErrClosed
	}
}

// reserve picks the earliest instant satisfying both the spacing and window
// constraints, records it, and returns it. Must be called with mu held.
// Because each reservation builds on the previous ones, grant order is FIFO.
func (l *Limiter) reserve(now time.Time) time.Time {
	at := now
	if n := len(l.grants); n > 0 {
		if t := l.grants[n-1].Add(l.spacing); t.After(at) {
			at = t
		}
		if n >= l.limit {
			if t := l.grants[n-l.limit].Add(l.window); t.After(at) {
				at = t
			}
		}
	}
	l.grants = append(l.grants, at)

	// Only the most recent limit reservations can constrain future ones.
	if len(l.grants) > l.limit {
		l.grants = l.grants[len(l.grants)-l.limit:]
	}
	return at
}

// Close releases all pending and future Acquire calls with ErrClosed.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.closed) })
}
