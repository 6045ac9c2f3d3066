package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNewLimiter(t *testing.T) {
	l := NewLimiter(10.0, 5)
	if l == nil {
		t.Fatal("NewLimiter returned nil")
	}
	if l.rate != 10.0 {
		t.Errorf("rate = %f, want 10.0", l.rate)
	}
	if l.burst != 5 {
		t.Errorf("burst = %d, want 5", l.burst)
	}
}

func TestAllow_WithinBurst(t *testing.T) {
	l := NewLimiter(1.0, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow("key1") {
			t.Errorf("request %d should be allowed (within burst)", i+1)
		}
	}
}

func TestAllow_ExceedsBurst(t *testing.T) {
	l := NewLimiter(1.0, 2)

	l.Allow("key1")
	l.Allow("key1")

	if l.Allow("key1") {
		t.Error("request after burst exhaustion should be rejected")
	}
}

func TestAllow_RefillAfterWait(t *testing.T) {
	now := time.Now()
	l := NewLimiter(10.0, 2) // 10 tokens/sec
	l.nowFunc = func() time.Time { return now }

	l.Allow("key1")
	l.Allow("key1")

	if l.Allow("key1") {
		t.Error("expected rejection after burst")
	}

	// Advance time by 200ms => 10 * 0.2 = 2 tokens refilled
	now = now.Add(200 * time.Millisecond)

	if !l.Allow("key1") {
		t.Error("expected allow after token refill")
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := NewLimiter(1.0, 1)

	l.Allow("key1")
	if l.Allow("key1") {
		t.Error("key1 should be exhausted")
	}

	if !l.Allow("key2") {
		t.Error("key2 should be allowed (independent bucket)")
	}
}

func TestAllow_BurstDoesNotExceedMax(t *testing.T) {
	now := time.Now()
	l := NewLimiter(100.0, 3)
	l.nowFunc = func() time.Time { return now }

	l.Allow("key1")
	l.Allow("key1")
	l.Allow("key1")

	now = now.Add(10 * time.Second) // Would refill 1000 tokens uncapped

	for i := 0; i < 3; i++ {
		if !l.Allow("key1") {
			t.Errorf("request %d should be allowed after refill capped at burst", i+1)
		}
	}
	if l.Allow("key1") {
		t.Error("4th request should be rejected (burst cap)")
	}
}

func TestAllow_ZeroRate(t *testing.T) {
	l := NewLimiter(0.0, 2)

	if !l.Allow("key1") || !l.Allow("key1") {
		t.Error("initial burst should be available")
	}
	if l.Allow("key1") {
		t.Error("should be rejected with zero rate")
	}
}

func TestAllow_PrunesRefilledBuckets(t *testing.T) {
	now := time.Now()
	l := NewLimiter(1.0, 1)
	l.nowFunc = func() time.Time { return now }

	for i := 0; i < maxBuckets; i++ {
		l.Allow(fmt.Sprintf("client-%d", i))
	}
	if got := l.Len(); got != maxBuckets {
		t.Fatalf("Len() = %d, want %d", got, maxBuckets)
	}

	// Every bucket has refilled after a second; the next new key prunes them.
	now = now.Add(time.Second)
	l.Allow("late")
	if got := l.Len(); got != 1 {
		t.Errorf("Len() after prune = %d, want 1", got)
	}
}

func TestAllow_ConcurrentAccess(t *testing.T) {
	now := time.Now()
	l := NewLimiter(1000.0, 100)
	l.nowFunc = func() time.Time { return now } // frozen: no refill

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow("concurrent-key")
		}()
	}

	wg.Wait()
	close(allowed)

	allowedCount := 0
	for a := range allowed {
		if a {
			allowedCount++
		}
	}
	if allowedCount != 100 {
		t.Errorf("allowed %d requests, want exactly the burst of 100", allowedCount)
	}
}

func TestOperationRateLimits(t *testing.T) {
	limiters := NewOperationLimiters()

	tests := []struct {
		op    string
		burst int
	}{
		{OpSimulate, 5},
		{OpPredictDose, 20},
		{OpPredictGrowth, 20},
		{OpCellLines, 10},
		{OpHealth, 50},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			limiter, ok := limiters[tt.op]
			if !ok {
				t.Fatalf("missing rate limiter for %s", tt.op)
			}
			if limiter.burst != tt.burst {
				t.Errorf("burst = %d, want %d", limiter.burst, tt.burst)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	limiters := OperationLimiters{OpSimulate: NewLimiter(0, 1)}

	if err := limiters.Check(OpSimulate, "10.0.0.1"); err != nil {
		t.Errorf("unexpected error for first simulate: %v", err)
	}

	// Unknown operation should pass (no limiter = no limit)
	if err := limiters.Check("unknown", "10.0.0.1"); err != nil {
		t.Errorf("unexpected error for unknown op: %v", err)
	}

	err := limiters.Check(OpSimulate, "10.0.0.1")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited after burst exhaustion, got %v", err)
	}

	// Another client has its own bucket.
	if err := limiters.Check(OpSimulate, "10.0.0.2"); err != nil {
		t.Errorf("unexpected error for second client: %v", err)
	}
}
