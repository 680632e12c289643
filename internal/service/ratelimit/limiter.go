// Package ratelimit is a keyed token bucket limiter.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	xhttp "github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/http"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter holds one bucket per key, all with the same capacity and refill
// rate.
type Limiter struct {
	mu       sync.Mutex
	m        map[string]*bucket
	capacity float64
	rate     float64 // tokens per second
	idle     time.Duration
	swept    time.Time
	now      func() time.Time
}

// DefaultIdle is how long a bucket may go unused before it can be dropped.
const DefaultIdle = 10 * time.Minute

// New creates a limiter allowing burst requests at once and rps sustained.
func New(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{m: make(map[string]*bucket), capacity: float64(burst), rate: rps, idle: DefaultIdle, now: time.Now}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) >= l.idle {
		l.sweep(now)
	}
	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * l.rate
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// sweep drops buckets idle for at least l.idle that would be full by now.
// Dropping a full bucket does not change what its key is allowed.
func (l *Limiter) sweep(now time.Time) {
	l.swept = now
	for k, b := range l.m {
		elapsed := now.Sub(b.last)
		if elapsed < l.idle {
			continue
		}
		if b.tokens+elapsed.Seconds()*l.rate >= l.capacity {
			delete(l.m, k)
		}
	}
}

// Middleware rejects requests over the limit with 429, keyed by client IP.
func Middleware(l *Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				return xhttp.ErrorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
