// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements per-caller token-bucket rate limiting. Reads are
// mostly served from the read-through cache, while every write opens a
// database transaction, so writes take more tokens than reads.
//
// The limiter is process-local. Replays of idempotent submissions are not
// charged (see IdempotencyValidator).
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

// KeyFunc selects the bucket a request is charged to.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP charges the caller resolved by Identity ("user:<id>") and
// falls back to the client address ("ip:<addr>").
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get(ctxKeyUserID); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimitOptions configures NewRateLimiter.
type RateLimitOptions struct {
	RPS   float64 // tokens refilled per second; 0 only spends the burst
	Burst int     // bucket size; values < 1 become 1

	// WriteCost is what a POST, PUT, PATCH or DELETE takes from the bucket.
	// Values < 1 become 1; values above Burst are capped at Burst.
	WriteCost int

	// IdleTTL drops buckets unused for this long. Zero means 10 minutes.
	IdleTTL time.Duration

	// Key defaults to KeyByUserOrIP.
	Key KeyFunc
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter hands out one token bucket per key. Safe for concurrent use.
type RateLimiter struct {
	opts RateLimitOptions
	now  func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter normalizes opts and returns a limiter ready for Handler.
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
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	if opts.Key == nil {
		opts.Key = KeyByUserOrIP()
	}
	return &RateLimiter{
		opts:      opts,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// limiter returns key's bucket, creating it on first use. Idle buckets are
// swept at most once per IdleTTL, before the lookup so a stale bucket is
// replaced rather than refreshed.
func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.opts.IdleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) >= rl.opts.IdleTTL {
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
	b.seen = now
	return b.lim
}

// Len reports how many buckets are live.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

func (rl *RateLimiter) cost(method string) int {
	if isWrite(method) {
		return rl.opts.WriteCost
	}
	return 1
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// IsRateBypass reports whether IdempotencyValidator found a stored result for
// this request, in which case it is not charged.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler charges each request to its bucket and answers 429 with a
// Retry-After (whole seconds) when the bucket cannot cover it:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 2
//	{"request_id": "<uuid>", "code": "too_many_requests", "message": "rate limit exceeded"}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		lim := rl.limiter(rl.opts.Key(c), now)
		n := rl.cost(c.Request.Method)
		if lim.AllowN(now, n) {
			c.Next()
			return
		}

		rateLimited.WithLabelValues(requestKind(c.Request.Method)).Inc()
		c.Header("Retry-After", retryAfter(lim, now, n))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}

// retryAfter renders the wait until n tokens are available, at least 1s.
// The trial reservation is cancelled so it does not consume tokens.
func retryAfter(lim *rate.Limiter, now time.Time, n int) string {
	r := lim.ReserveN(now, n)
	if !r.OK() {
		return "1"
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)

	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
