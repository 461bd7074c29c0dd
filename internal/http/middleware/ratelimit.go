package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// keyFunc picks the bucket a request is charged to.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP charges authenticated callers by uid and everyone else by
// client IP. The prefixes keep the two namespaces apart.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := userIDFromCtx(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

var edgeThrottled = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: metricsNamespace,
	Name:      "edge_throttled_total",
	Help:      "Requests rejected by the edge throttle, by key kind (user or ip).",
}, []string{"kind"})

func init() { prometheus.MustRegister(edgeThrottled) }

const (
	bucketIdleTTL = 10 * time.Minute
	sweepEvery    = 5000
)

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter is a process-local token-bucket throttle in front of every
// route. It guards the process, not the product: per-action ceilings live in
// the ratelimit package and are enforced by the services.
type RateLimiter struct {
	every rate.Limit
	burst int
	keyFn keyFunc
	idle  time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups int
}

// NewRateLimiter returns a limiter refilling rps tokens per second with the
// given burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return &RateLimiter{
		every:   rate.Limit(rps),
		burst:   max(burst, 1),
		keyFn:   keyFn,
		idle:    bucketIdleTTL,
		buckets: make(map[string]*bucket),
	}
}

// bucketFor returns the limiter charged for key. Every sweepEvery lookups
// idle buckets are dropped first, including key's own.
func (rl *RateLimiter) bucketFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.lookups++; rl.lookups >= sweepEvery {
		rl.sweep(now)
	}
	b := rl.buckets[key]
	if b == nil {
		b = &bucket{lim: rate.NewLimiter(rl.every, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	return b.lim
}

// sweep must be called with mu held.
func (rl *RateLimiter) sweep(now time.Time) {
	for k, b := range rl.buckets {
		if now.Sub(b.seen) >= rl.idle {
			delete(rl.buckets, k)
		}
	}
	rl.lookups = 0
}

// IsRateBypass reports whether IdempotencyValidator exempted this request.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// retryAfter is the whole number of seconds until res could be honored.
func retryAfter(res *rate.Reservation, now time.Time) string {
	if !res.OK() {
		return "60"
	}
	secs := int(math.Ceil(res.DelayFrom(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// Handler rejects requests over budget with 429 and a Retry-After header
// derived from the caller's own bucket. Idempotent replays are never
// throttled.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		key := rl.keyFn(c)
		now := time.Now()
		res := rl.bucketFor(key, now).ReserveN(now, 1)
		if res.OK() && res.DelayFrom(now) == 0 {
			c.Next()
			return
		}
		c.Header("Retry-After", retryAfter(res, now))
		res.CancelAt(now)

		kind, _, _ := strings.Cut(key, ":")
		edgeThrottled.WithLabelValues(kind).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "resource-exhausted",
			"message":    "too many requests, please slow down",
		})
	}
}
