package handlers

import (
	"irouter/internal/auth"
	"irouter/internal/logger"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 30 * time.Minute

// RateLimiter throttles generation requests per authenticated caller
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time
	now        func() time.Time
}

// NewRateLimiter allows rps requests per second per caller with the given burst.
// A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:      rate.Limit(rps),
		burst:      burst,
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
		now:        time.Now,
	}
}

func (rl *RateLimiter) limiterFor(email string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lastAccess[email] = rl.now()
	limiter, ok := rl.limiters[email]
	if !ok {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[email] = limiter
	}
	return limiter
}

// Cleanup drops limiters of callers idle for longer than limiterIdleTTL
func (rl *RateLimiter) Cleanup() {
	cutoff := rl.now().Add(-limiterIdleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for email, last := range rl.lastAccess {
		if last.Before(cutoff) {
			delete(rl.limiters, email)
			delete(rl.lastAccess, email)
		}
	}
}

// Middleware must run after authentication
func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rl.limit <= 0 {
			next(w, r)
			return
		}

		email, _ := auth.EmailFromContext(r.Context())
		if !rl.limiterFor(email).Allow() {
			logger.Log.WithField("email", email).Warn("Rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			sendError(w, http.StatusTooManyRequests, "Too many requests", nil)
			return
		}
		next(w, r)
	}
}
