// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the per-caller token bucket. Reads (friend details, search,
// groups, profile) take one token; writes (friend add/remove, group creation)
// take WriteCost tokens, because every write invalidates a client cache and
// triggers a profile refresh. Buckets are process-local and idle ones are
// swept periodically.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateKey maps a request to the identity whose bucket it draws from.
type RateKey func(*gin.Context) string

// CallerOrIP keys buckets by the authenticated email, or by client IP for
// requests BearerAuth skipped.
func CallerOrIP(c *gin.Context) string {
	if uid := UserID(c); uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.ClientIP()
}

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	RPS   float64 // refill rate; <= 0 refuses everything once the burst is spent
	Burst int     // bucket size; < 1 is treated as 1
	// WriteCost is the number of tokens a POST takes. Values < 1 mean 1 and
	// values above Burst are capped to Burst.
	WriteCost int
	Key       RateKey       // defaults to CallerOrIP
	IdleTTL   time.Duration // buckets unused this long are dropped (default 10m)
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a set of token buckets keyed by RateKey. Safe for
// concurrent use.
type RateLimiter struct {
	opts RateLimitOptions

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter returns a limiter with normalized options.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.WriteCost < 1 {
		opts.WriteCost = 1
	}
	if opts.WriteCost > opts.Burst {
		opts.WriteCost = opts.Burst
	}
	if opts.Key == nil {
		opts.Key = CallerOrIP
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		opts:      opts,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// limiter returns the bucket for key, creating it on first use. At most once
// per IdleTTL the whole map is swept before the lookup, so a bucket idle for
// longer than IdleTTL starts over full.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.opts.IdleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.opts.IdleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(rl.opts.RPS), rl.opts.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// size reports the number of live buckets.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// IsRateBypass reports whether IdempotencyValidator found a stored result for
// this request. Replays are served without taking tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limits. Refused requests get 429 with code
// "rate_limited" and a Retry-After of at least one second.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		kind, cost := "read", 1
		if c.Request.Method == http.MethodPost {
			kind, cost = "write", rl.opts.WriteCost
		}

		lim := rl.limiter(rl.opts.Key(c))
		now := rl.now()
		if lim.AllowN(now, cost) {
			c.Next()
			return
		}

		rateLimited.WithLabelValues(kind).Inc()
		c.Header("Retry-After", strconv.Itoa(retryAfter(lim, now, cost)))
		abort(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
	}
}

// retryAfter estimates in whole seconds when cost tokens will be available.
func retryAfter(lim *rate.Limiter, now time.Time, cost int) int {
	if lim.Limit() <= 0 {
		return 1
	}
	missing := float64(cost) - lim.TokensAt(now)
	secs := int(math.Ceil(missing / float64(lim.Limit())))
	if secs < 1 {
		return 1
	}
	return secs
}
