// Package ratelimit provides per-client HTTP rate limiting using the token
// bucket algorithm. This is the inbound limiter; the outbound model-call
// limiter lives in internal/ratelimit.
package ratelimit

import (
	"sync"
	"time"
)

// tokenBucket allows a steady request rate with bursts up to capacity
type tokenBucket struct {
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(capacity int, refillRate float64) *tokenBucket {
	return &tokenBucket{
		capacity:   float64(capacity),
		refillRate: refillRate,
		tokens:     float64(capacity),
		lastRefill: time.Now(),
	}
}

func (tb *tokenBucket) allow() (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	tb.tokens = min(tb.capacity, tb.tokens+now.Sub(tb.lastRefill).Seconds()*tb.refillRate)
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true, 0
	}

	retryAfter := time.Duration((1.0 - tb.tokens) / tb.refillRate * float64(time.Second))
	return false, retryAfter
}

// Limiter manages one token bucket per client ID (typically the client IP)
type Limiter struct {
	limit  int
	window time.Duration

	mu         sync.Mutex
	buckets    map[string]*tokenBucket
	lastAccess map[string]time.Time

	cleanupStop chan struct{}
	stopOnce    sync.Once
}

// NewLimiter allows limit requests per window for each client. Idle client
// buckets are dropped after ten windows to bound memory.
func NewLimiter(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		limit:       limit,
		window:      window,
		buckets:     make(map[string]*tokenBucket),
		lastAccess:  make(map[string]time.Time),
		cleanupStop: make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether a request from clientID may proceed, and how long
// to wait before retrying when it may not.
func (l *Limiter) Allow(clientID string) (bool, time.Duration) {
	l.mu.Lock()
	bucket, ok := l.buckets[clientID]
	if !ok {
		bucket = newTokenBucket(l.limit, float64(l.limit)/l.window.Seconds())
		l.buckets[clientID] = bucket
	}
	l.lastAccess[clientID] = time.Now()
	l.mu.Unlock()

	return bucket.allow()
}

// Stop ends the background cleanup goroutine
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.cleanupStop) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * l.window)
			l.mu.Lock()
			for id, last := range l.lastAccess {
				if last.Before(cutoff) {
					delete(l.buckets, id)
					delete(l.lastAccess, id)
				}
			}
			l.mu.Unlock()
		case <-l.cleanupStop:
			return
		}
	}
}
