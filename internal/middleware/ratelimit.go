package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/meetsmatch/ridemap/internal/errors"
)

// RateLimiter is a token bucket that remembers when it was last used.
type RateLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
	mu       sync.Mutex
}

// NewRateLimiter creates a bucket holding maxTokens that regains one token
// every refillRate.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	return &RateLimiter{
		limiter:  rate.NewLimiter(rate.Every(refillRate), maxTokens),
		lastUsed: time.Now(),
	}
}

// Allow checks if a request is allowed
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	rl.lastUsed = time.Now()
	rl.mu.Unlock()
	return rl.limiter.Allow()
}

func (rl *RateLimiter) idleSince() time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.lastUsed
}

// RateLimitMiddleware limits requests per client IP
type RateLimitMiddleware struct {
	limiters   map[string]*RateLimiter
	mu         sync.RWMutex
	maxTokens  int
	refillRate time.Duration
}

// NewRateLimitMiddleware creates a new rate limiting middleware
func NewRateLimitMiddleware(maxTokens int, refillRate time.Duration) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiters:   make(map[string]*RateLimiter),
		maxTokens:  maxTokens,
		refillRate: refillRate,
	}
}

// Handler rejects requests over the limit with 429.
func (m *RateLimitMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.getLimiter(c.ClientIP()).Allow() {
			appErr := ToAppError(c.Request.Context(), errors.NewRateLimitError(m.refillRate))
			c.Header("Retry-After", strconv.Itoa(int(m.refillRate.Seconds()+0.5)))
			logError(c.Request.Context(), appErr)
			c.AbortWithStatusJSON(appErr.HTTPStatus, ErrorResponse{Error: appErr})
			return
		}
		c.Next()
	}
}

// getLimiter gets or creates a rate limiter for a client
func (m *RateLimitMiddleware) getLimiter(key string) *RateLimiter {
	m.mu.RLock()
	limiter, exists := m.limiters[key]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if limiter, exists = m.limiters[key]; !exists {
			limiter = NewRateLimiter(m.maxTokens, m.refillRate)
			m.limiters[key] = limiter
		}
		m.mu.Unlock()
	}
	return limiter
}

// Prune drops limiters unused for longer than idle and returns how many it
// dropped.
func (m *RateLimitMiddleware) Prune(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	pruned := 0
	for key, limiter := range m.limiters {
		if limiter.idleSince().Before(cutoff) {
			delete(m.limiters, key)
			pruned++
		}
	}
	return pruned
}
