package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-key token bucket rate limiter.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows n requests per interval for each key, refilling
// continuously.
func NewRateLimiter(n int, interval time.Duration) *RateLimiter {
	if n < 1 {
		n = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(interval / time.Duration(n)),
		burst:    n,
		now:      time.Now,
	}
}

// Allow reports whether key may proceed and consumes a token if so.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.lim.AllowN(now, 1)
}

// Sweep forgets keys idle for longer than idle and returns how many were dropped.
func (rl *RateLimiter) Sweep(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	n := 0
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(rl.visitors, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}
