package crawler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces requests per host. Hosts without a configured delay
// use the default, and a default of zero means no pacing at all.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	custom   map[string]struct{} // hosts paced by SetHostDelay
	mu       sync.RWMutex
	delay    time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(defaultDelay time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		custom:   make(map[string]struct{}),
		delay:    defaultDelay,
	}
}

// Wait waits for permission to send a request to host
func (r *RateLimiter) Wait(ctx context.Context, host string) error {
	return r.getLimiter(host).Wait(ctx)
}

// SetHostDelay sets a custom delay for a specific host, replacing any
// default limiter already created for it
func (r *RateLimiter) SetHostDelay(host string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if delay <= 0 {
		delay = r.delay
	}
	r.limiters[host] = newLimiter(delay)
	r.custom[host] = struct{}{}
}

// HasHostDelay reports whether SetHostDelay has been called for host
func (r *RateLimiter) HasHostDelay(host string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.custom[host]
	return ok
}

// getLimiter gets or creates a rate limiter for a host
func (r *RateLimiter) getLimiter(host string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[host]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, exists := r.limiters[host]; exists {
		return limiter
	}

	limiter = newLimiter(r.delay)
	r.limiters[host] = limiter
	return limiter
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}
