// Package ratelimit provides per-key token bucket rate limiting for the
// celldyn operations exposed over HTTP and MCP.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Operation names shared by the transports.
const (
	OpSimulate      = "simulate"
	OpPredictDose   = "predict_dose"
	OpPredictGrowth = "predict_growth"
	OpCellLines     = "cell_lines"
	OpHealth        = "health"
)

// ErrRateLimited is returned (wrapped) by Check when a bucket is empty.
var ErrRateLimited = errors.New("rate limit exceeded")

// maxBuckets bounds the number of per-key buckets a Limiter keeps.
// Beyond it, buckets that have refilled completely are dropped.
const maxBuckets = 4096

// Limiter implements a per-key token bucket rate limiter.
// Each key gets its own bucket with the configured rate and burst.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64          // tokens per second
	burst   int              // max burst size (also initial token count)
	nowFunc func() time.Time // injectable clock for testing
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
// The burst size also serves as the initial number of tokens available.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow checks if a request for the given key should be allowed.
// Returns true if allowed, false if rate limited.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()

	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= maxBuckets {
			l.pruneLocked(now)
		}
		// First request for this key: start with full burst
		b = &bucket{
			tokens:    float64(l.burst),
			lastCheck: now,
		}
		l.buckets[key] = b
	}

	l.refill(b, now)

	// Check if we have at least 1 token
	if b.tokens < 1.0 {
		return false
	}

	b.tokens--
	return true
}

func (l *Limiter) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastCheck).Seconds()
	if elapsed > 0 {
		b.tokens += l.rate * elapsed
		if b.tokens > float64(l.burst) {
			b.tokens = float64(l.burst)
		}
		b.lastCheck = now
	}
}

// pruneLocked drops buckets that are full again; they are
// indistinguishable from a fresh bucket.
func (l *Limiter) pruneLocked(now time.Time) {
	for key, b := range l.buckets {
		l.refill(b, now)
		if b.tokens >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}

// Len returns the number of tracked buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// OperationLimiters maps operation names to their rate limiters.
type OperationLimiters map[string]*Limiter

// NewOperationLimiters creates the default set of per-operation rate limiters.
// Simulations are the expensive call; lookups are cheap.
func NewOperationLimiters() OperationLimiters {
	return OperationLimiters{
		OpSimulate:      NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		OpPredictDose:   NewLimiter(2.0, 20),      // 120/minute, burst 20
		OpPredictGrowth: NewLimiter(2.0, 20),      // 120/minute, burst 20
		OpCellLines:     NewLimiter(1.0, 10),      // 60/minute, burst 10
		OpHealth:        NewLimiter(5.0, 50),      // 300/minute, burst 50
	}
}

// Check checks the rate limit for op on behalf of client. client may be
// empty when the transport has a single caller (MCP over stdio).
// Returns nil if allowed, or an error wrapping ErrRateLimited.
// Operations without a configured limiter are always allowed.
func (ls OperationLimiters) Check(op, client string) error {
	limiter, ok := ls[op]
	if !ok {
		return nil // No limiter configured = no limit
	}

	if !limiter.Allow(op + "|" + client) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrRateLimited, op)
	}

	return nil
}
