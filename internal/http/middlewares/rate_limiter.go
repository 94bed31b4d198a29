package middlewares

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter hands every key its own token bucket.
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	clients map[string]*clientBucket
	calls   int
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per key with bursts up to burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		clients: make(map[string]*clientBucket),
	}
}

func (rl *RateLimiter) allow(key string, now time.Time) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.calls++
	if rl.calls%512 == 0 {
		for k, b := range rl.clients {
			if now.Sub(b.lastSeen) > rl.idleTTL {
				delete(rl.clients, k)
			}
		}
	}

	b, ok := rl.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// RateLimiterMiddleware limits requests per derived key. Only methods in
// methods are counted; an empty list counts everything.
func (rl *RateLimiter) RateLimiterMiddleware(keyFn func(*gin.Context) string, methods ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(methods) > 0 && !contains(methods, c.Request.Method) {
			c.Next()
			return
		}

		key := keyFn(c)

		if key == "" {
			// fallback to IP if key cannot be derived
			key = clientIP(c)
		}

		ok, retry := rl.allow(key, time.Now())
		if !ok {
			secs := int(retry.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.Abort()
			c.String(http.StatusTooManyRequests, "Too many requests. Please try again shortly.")
			return
		}

		c.Next()
	}
}

// for unauthenticated endpoints: rate limit by IP
func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	// Gin's ClientIP respects X-Forwarded-For / X-Real-IP if configured.
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)

	if err == nil && host != "" {
		return host
	}

	return ip
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
