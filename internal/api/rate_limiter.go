package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// OperatorRateLimiter throttles admin requests per operator. Migration runs
// and rollbacks are heavyweight; a runaway UI or script should not be able
// to queue dozens of them.
type OperatorRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	limit rate.Limit
	burst int
}

// NewOperatorRateLimiter creates a new per-operator rate limiter
func NewOperatorRateLimiter(requestsPerSecond, burst int) *OperatorRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &OperatorRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// Allow reports whether the operator may make a request now
func (rl *OperatorRateLimiter) Allow(operatorID string) bool {
	return rl.getLimiter(operatorID).Allow()
}

// getLimiter returns the rate limiter for a specific operator
func (rl *OperatorRateLimiter) getLimiter(operatorID string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[operatorID]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check in case another goroutine created it
	if limiter, exists := rl.limiters[operatorID]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[operatorID] = limiter
	return limiter
}
