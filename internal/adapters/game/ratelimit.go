package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces the minimum interval between outbound game requests.
// Burst is 1 so two calls can never be closer than the configured floor.
type RateLimiter struct {
	limiter *rate.Limiter

	mu   sync.Mutex
	last time.Time
}

// NewRateLimiter creates a limiter with the given interval floor
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	if minInterval <= 0 {
		minInterval = time.Millisecond
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// Acquire blocks until the interval since the last permitted call has
// elapsed, then records the permit time. Called immediately before every
// outbound HTTP request.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	r.mu.Lock()
	r.last = time.Now()
	r.mu.Unlock()
	return nil
}

// LastRequest returns when the most recent permit was granted
func (r *RateLimiter) LastRequest() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
