package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"birthday-wall/backend/pkg/errors"
	"birthday-wall/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Limit is the sustained requests per second per key
	Limit rate.Limit
	// Burst is the bucket size
	Burst int
	// ExpiryDuration drops idle keys after this long
	ExpiryDuration time.Duration
	// KeyFunc extracts the limiting key from a request
	KeyFunc func(*gin.Context) string
	// Skip exempts requests from limiting
	Skip func(*gin.Context) bool
}

// DefaultRateLimiterOptions limits each client IP to 5 rps with bursts of 20
// and only counts write requests; reads of the wall are cheap and cached.
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:          5,
		Burst:          20,
		ExpiryDuration: time.Hour,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
		Skip: func(c *gin.Context) bool {
			switch c.Request.Method {
			case "GET", "HEAD", "OPTIONS":
				return true
			}
			return false
		},
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token bucket limiter for gin
type RateLimiter struct {
	mu      sync.Mutex
	options RateLimiterOptions
	clients map[string]*client
	logger  *logger.Logger
}

// NewRateLimiter creates a rate limiter. Zero-valued options fall back to
// DefaultRateLimiterOptions.
func NewRateLimiter(logger *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		o := options[0]
		if o.Limit > 0 {
			opts.Limit = o.Limit
		}
		if o.Burst > 0 {
			opts.Burst = o.Burst
		}
		if o.ExpiryDuration > 0 {
			opts.ExpiryDuration = o.ExpiryDuration
		}
		if o.KeyFunc != nil {
			opts.KeyFunc = o.KeyFunc
		}
		if o.Skip != nil {
			opts.Skip = o.Skip
		}
	}

	return &RateLimiter{
		options: opts,
		clients: make(map[string]*client),
		logger:  logger,
	}
}

// Middleware returns the gin handler
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.options.Skip != nil && r.options.Skip(c) {
			c.Next()
			return
		}

		key := r.options.KeyFunc(c)
		if !r.getLimiter(key).Allow() {
			r.logger.Warn("Rate limit exceeded",
				"client", key,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			c.Header("Retry-After", "1")
			c.Header("X-RateLimit-Limit", strconv.Itoa(r.options.Burst))
			c.Error(errors.NewTooManyRequestsError("RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later."))
			c.Abort()
			return
		}

		c.Next()
	}
}

func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, exists := r.clients[key]
	if !exists {
		limiter := rate.NewLimiter(r.options.Limit, r.options.Burst)
		r.clients[key] = &client{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// Run evicts idle clients every minute until ctx is done
func (r *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictIdle(time.Now())
		}
	}
}

func (r *RateLimiter) evictIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for k, v := range r.clients {
		if now.Sub(v.lastSeen) > r.options.ExpiryDuration {
			delete(r.clients, k)
			evicted++
		}
	}
	return evicted
}
