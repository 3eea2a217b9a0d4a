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

// idleBucketTTL is how long an untouched bucket survives a sweep.
const idleBucketTTL = 10 * time.Minute

// KeyFunc maps a request to the identity whose bucket it draws from.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP keys by caller when one is known, else by client address.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid := c.GetString(keyUserID); uid != "" {
			return "user:" + uid
		}
		if uid := c.GetHeader(HeaderUserID); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// KeyBySession keys by the :id path parameter so each session gets its own
// typing budget. Routes without an id fall back to KeyByUserOrIP.
func KeyBySession() KeyFunc {
	fallback := KeyByUserOrIP()
	return func(c *gin.Context) string {
		if id := c.Param("id"); id != "" {
			return "session:" + id
		}
		return fallback(c)
	}
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter is a process-local token bucket per key. Buckets idle for
// longer than idleBucketTTL are swept at most once per TTL.
type RateLimiter struct {
	limit rate.Limit
	burst int
	key   KeyFunc
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter refills rps tokens per second up to burst (minimum 1).
// An rps of zero grants each key its burst once and never refills.
func NewRateLimiter(rps float64, burst int, key KeyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:     rate.Limit(rps),
		burst:     burst,
		key:       key,
		ttl:       idleBucketTTL,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.ttl {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
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

// IsRateBypass reports whether IdempotencyValidator exempted the request.
func IsRateBypass(c *gin.Context) bool { return flag(c, keyRateSkip) }

// Handler rejects over-budget requests with 429 and a Retry-After hint in
// whole seconds. Idempotent replays pass without spending a token.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		res := rl.limiter(rl.key(c)).ReserveN(now, 1)
		if res.OK() {
			wait := res.DelayFrom(now)
			if wait == 0 {
				c.Next()
				return
			}
			res.CancelAt(now)
			rl.reject(c, wait)
			return
		}
		rl.reject(c, time.Second)
	}
}

func (rl *RateLimiter) reject(c *gin.Context, wait time.Duration) {
	httpRateLimited.WithLabelValues(routeLabel(c)).Inc()
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody(c, "rate_limited", "rate limit exceeded"))
}
