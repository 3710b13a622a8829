package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per key
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	limit    rate.Limit
	burst    int
	cleanup  time.Duration
	stopOnce sync.Once
	stop     chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing perSecond requests per key with the given burst
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		cleanup: 5 * time.Minute,
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// NewPerMinuteRateLimiter creates a limiter allowing perMinute requests per key
func NewPerMinuteRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return NewRateLimiter(float64(perMinute)/60, perMinute)
}

// cleanupLoop removes stale buckets
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, b := range rl.buckets {
				if now.Sub(b.lastSeen) > rl.cleanup {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop ends the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Allow checks if a request should be allowed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = time.Now()
	rl.mu.Unlock()

	return b.limiter.Allow()
}

// RateLimitMiddleware creates a rate limiting middleware
// key can be "tenant", "ip", or "user"
func RateLimitMiddleware(limiter *RateLimiter, keyType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string

		switch keyType {
		case "tenant":
			key = c.GetString("tenantID")
			if key == "" {
				key = c.ClientIP()
			}
		case "user":
			key = c.GetString("userID")
			if key == "" {
				key = c.ClientIP()
			}
		default:
			key = c.ClientIP()
		}

		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": "Too many requests, please try again later",
			})
			return
		}

		c.Next()
	}
}

// GatewayRateLimits groups the limiters applied to gateway routes
type GatewayRateLimits struct {
	Charge   *RateLimiter // card charges and authorizations
	Refund   *RateLimiter
	API      *RateLimiter
	Callback *RateLimiter // per client IP, processors resend in bursts
}

// NewGatewayRateLimits creates the route limiters. callbackPerMinute bounds
// unauthenticated notification traffic per client IP.
func NewGatewayRateLimits(callbackPerMinute int) *GatewayRateLimits {
	return &GatewayRateLimits{
		Charge:   NewRateLimiter(10, 30),
		Refund:   NewRateLimiter(5, 15),
		API:      NewRateLimiter(100, 200),
		Callback: NewPerMinuteRateLimiter(callbackPerMinute),
	}
}

// Stop ends every limiter's cleanup loop
func (l *GatewayRateLimits) Stop() {
	l.Charge.Stop()
	l.Refund.Stop()
	l.API.Stop()
	l.Callback.Stop()
}
