package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestAllowRefills(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(1, 2)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("burst of 2 must pass")
	}
	if l.Allow("a") {
		t.Fatalf("third request must be limited")
	}
	if !l.Allow("b") {
		t.Fatalf("keys must not share buckets")
	}
	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Fatalf("expected refill after one second")
	}
}

func TestMiddlewareReturns429(t *testing.T) {
	e := echo.New()
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, Middleware(New(0, 1)))

	codes := make([]int, 2)
	for i := range codes {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		e.ServeHTTP(rec, req)
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestAllowDropsIdleBuckets(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(1, 2)
	l.now = func() time.Time { return now }

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		l.Allow(ip)
	}
	if l.Len() != 3 {
		t.Fatalf("expected 3 buckets, got %d", l.Len())
	}

	now = now.Add(DefaultIdle)
	if !l.Allow("10.0.0.4") {
		t.Fatalf("new key must pass")
	}
	if l.Len() != 1 {
		t.Fatalf("idle buckets must be dropped, got %d", l.Len())
	}
}

func TestSweepKeepsDrainedBuckets(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(0, 1)
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(2 * DefaultIdle)
	if l.Allow("a") {
		t.Fatalf("a bucket that never refills must stay drained")
	}
	if l.Len() != 1 {
		t.Fatalf("expected drained bucket to be kept, got %d", l.Len())
	}
}
