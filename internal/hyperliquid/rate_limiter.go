package hyperliquid

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces the per-IP weight budget proactively so the
// exchange never has to reject us. Hyperliquid allows 1200 weight per
// minute per IP on the REST surface.
type RateLimiter struct {
	mu sync.Mutex

	currentWeight int
	windowResetAt time.Time
	maxWeight     int

	cooldownUntil time.Time
}

// NewRateLimiter creates a limiter with the default 1200/min budget.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		maxWeight:     1200,
		windowResetAt: time.Now().Add(time.Minute),
	}
}

// Wait blocks until the given weight fits within the budget, or the
// context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context, weight int) error {
	for {
		wait, ok := r.tryAcquire(weight)
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire records the weight if it fits, otherwise returns how long
// to wait before retrying.
func (r *RateLimiter) tryAcquire(weight int) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.After(r.windowResetAt) {
		r.currentWeight = 0
		r.windowResetAt = now.Add(time.Minute)
	}

	if now.Before(r.cooldownUntil) {
		return time.Until(r.cooldownUntil), false
	}

	if r.currentWeight+weight > r.maxWeight {
		wait := time.Until(r.windowResetAt)
		if wait < 0 {
			wait = 100 * time.Millisecond
		}
		return wait, false
	}

	r.currentWeight += weight
	return 0, true
}

// Penalize backs the limiter off after a 429, without waiting for the
// window to roll over.
func (r *RateLimiter) Penalize(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(r.cooldownUntil) {
		r.cooldownUntil = until
	}
}

// Usage returns the consumed weight, the budget, and time until reset.
func (r *RateLimiter) Usage() (current, max int, resetIn time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resetIn = time.Until(r.windowResetAt)
	if resetIn < 0 {
		resetIn = 0
	}
	return r.currentWeight, r.maxWeight, resetIn
}
