package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type point struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

func TestMemoryCacheRoundTripsStructs(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	in := []point{{Timestamp: "2024-01-01 00:00:00", Value: 3}}
	if err := mc.Set(ctx, "k", in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var out []point
	if err := mc.Get(ctx, "k", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(out) != 1 || out[0] != in[0] {
		t.Fatalf("unexpected value %+v", out)
	}
}

func TestMemoryCacheExpires(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryCleanup(0), WithMemoryClock(func() time.Time { return now }))
	ctx := context.Background()

	_ = mc.Set(ctx, "k", "v", time.Minute)
	now = now.Add(2 * time.Minute)
	var s string
	if err := mc.Get(ctx, "k", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryCleanup(0), WithMemoryMaxSize(2), WithMemoryClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	ctx := context.Background()

	_ = mc.Set(ctx, "a", 1, time.Hour)
	_ = mc.Set(ctx, "b", 2, time.Hour)
	var v int
	_ = mc.Get(ctx, "a", &v)
	_ = mc.Set(ctx, "c", 3, time.Hour)

	if err := mc.Get(ctx, "b", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected b evicted, got %v", err)
	}
	if err := mc.Get(ctx, "a", &v); err != nil || v != 1 {
		t.Fatalf("expected a kept, got %v %d", err, v)
	}
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(0))
	ctx := context.Background()
	_ = mc.Set(ctx, "forecast:1:x", 1, 0)
	_ = mc.Set(ctx, "forecast:1:y", 1, 0)
	_ = mc.Set(ctx, "forecast:2:x", 1, 0)

	if err := mc.DeleteByPattern(ctx, "forecast:1:*"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mc.Len() != 1 {
		t.Fatalf("expected one key left, got %d", mc.Len())
	}
}

func TestHashKeyStable(t *testing.T) {
	a, err := HashKey(map[string]int{"x": 1, "y": 2})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, _ := HashKey(map[string]int{"y": 2, "x": 1})
	if a != b {
		t.Fatalf("expected equal hashes")
	}
}
