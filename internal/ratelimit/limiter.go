// Package ratelimit enforces per-user request limits, with a higher
// allowance for premium subscribers.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config defines per-tier token bucket parameters.
type Config struct {
	FreeRPS         float64
	FreeBurst       int
	PremiumRPS      float64
	PremiumBurst    int
	CleanupInterval time.Duration
}

// DefaultConfig is the production configuration.
var DefaultConfig = Config{
	FreeRPS:         10,
	FreeBurst:       20,
	PremiumRPS:      100,
	PremiumBurst:    200,
	CleanupInterval: time.Hour,
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
	premium  bool
}

// RateLimiter keeps one token bucket per user. Idle buckets are dropped
// by a background cleanup loop.
type RateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*limiterEntry
	config   Config

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine.
func NewRateLimiter(config Config) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		config:   config,
		stopCh:   make(chan struct{}),
	}
	rl.wg.Add(1)
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a request from the user is within its limit.
func (rl *RateLimiter) Allow(userID string, premium bool) bool {
	return rl.getLimiter(userID, premium).Allow()
}

// getLimiter returns the user's bucket, creating or replacing it when the
// user's tier changed since the bucket was made.
func (rl *RateLimiter) getLimiter(userID string, premium bool) *rate.Limiter {
	rl.mu.RLock()
	entry, exists := rl.limiters[userID]
	if exists && entry.premium == premium {
		entry.lastUsed = time.Now()
		rl.mu.RUnlock()
		return entry.limiter
	}
	rl.mu.RUnlock()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists = rl.limiters[userID]
	if exists && entry.premium == premium {
		entry.lastUsed = time.Now()
		return entry.limiter
	}

	rps, burst := rl.config.FreeRPS, rl.config.FreeBurst
	if premium {
		rps, burst = rl.config.PremiumRPS, rl.config.PremiumBurst
	}

	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	rl.limiters[userID] = &limiterEntry{
		limiter:  limiter,
		lastUsed: time.Now(),
		premium:  premium,
	}
	return limiter
}

// Cleanup drops buckets idle for longer than the cleanup interval.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.config.CleanupInterval)
	for userID, entry := range rl.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(rl.limiters, userID)
		}
	}
}

func (rl *RateLimiter) cleanupLoop() {
	defer rl.wg.Done()

	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine and waits for it to finish.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
	rl.wg.Wait()
}

// Len returns the number of live buckets. Useful for tests.
func (rl *RateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}
