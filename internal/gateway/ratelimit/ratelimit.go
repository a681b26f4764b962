// Package ratelimit implements the per-source-system token bucket the
// ingestion gateway uses for backpressure. Each source system refills at
// limit/window tokens per second; an exhausted bucket means the submitter
// is told to slow down rather than the gateway buffering unboundedly.
package ratelimit

import (
	"sync"
	"time"
)

// entry tracks the token-bucket state for a single source system.
type entry struct {
	tokens    float64
	lastCheck time.Time
}

// Limiter is an in-memory token-bucket rate limiter keyed by source system.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	window  time.Duration
}

// New creates a rate limiter with the given refill window.
func New(window time.Duration) *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		window:  window,
	}
	go l.cleanup()
	return l
}

// Allow checks whether the given source system has remaining capacity.
// It consumes one token on success and returns true. Returns false when
// the source has exceeded its rate.
func (l *Limiter) Allow(source string, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e, exists := l.entries[source]
	if !exists {
		l.entries[source] = &entry{
			tokens:    float64(limit - 1),
			lastCheck: now,
		}
		return true
	}

	elapsed := now.Sub(e.lastCheck)
	e.lastCheck = now

	// Refill tokens proportionally to elapsed time.
	rate := float64(limit) / l.window.Seconds()
	e.tokens += elapsed.Seconds() * rate
	if e.tokens > float64(limit) {
		e.tokens = float64(limit)
	}

	if e.tokens < 1 {
		return false
	}

	e.tokens--
	return true
}

// Reset clears the rate-limit state for a specific source system.
func (l *Limiter) Reset(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, source)
}

// cleanup periodically removes stale entries to prevent memory leaks.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		cutoff := time.Now().Add(-2 * l.window)
		for source, e := range l.entries {
			if e.lastCheck.Before(cutoff) {
				delete(l.entries, source)
			}
		}
		l.mu.Unlock()
	}
}
