package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheGetSetRoundTrip(t *testing.T) {
	c := NewMemoryCache(1<<20, time.Minute)
	ctx := context.Background()

	if _, ok, _ := c.Get(ctx, PoolPods, "missing"); ok {
		t.Fatal("expected miss on empty cache")
	}

	if err := c.Set(ctx, PoolPods, "p1", []byte("payload"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, err := c.Get(ctx, PoolPods, "p1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(val) != "payload" {
		t.Fatalf("got %q, want %q", val, "payload")
	}
}

func TestMemoryCacheExpiresByTTL(t *testing.T) {
	c := NewMemoryCache(1<<20, time.Hour)
	ctx := context.Background()

	if err := c.Set(ctx, PoolStreams, "s1", []byte("x"), time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok, _ := c.Get(ctx, PoolStreams, "s1"); ok {
		t.Fatal("expected entry to have expired")
	}
}

func TestMemoryCacheEvictsOverBudget(t *testing.T) {
	c := NewMemoryCache(10, time.Hour)
	ctx := context.Background()

	_ = c.Set(ctx, PoolRecordLists, "a", []byte("0123456789"), 0)
	_ = c.Set(ctx, PoolRecordLists, "b", []byte("0123456789"), 0)

	if _, ok, _ := c.Get(ctx, PoolRecordLists, "a"); ok {
		t.Fatal("expected oldest entry to be evicted once budget exceeded")
	}
	if _, ok, _ := c.Get(ctx, PoolRecordLists, "b"); !ok {
		t.Fatal("expected most recently set entry to survive")
	}
}

func TestMemoryCacheClearByPrefix(t *testing.T) {
	c := NewMemoryCache(1<<20, time.Hour)
	ctx := context.Background()

	_ = c.Set(ctx, PoolStreams, "streamChildren:pod1:/a", []byte("x"), 0)
	_ = c.Set(ctx, PoolStreams, "streamChildren:pod1:/b", []byte("x"), 0)
	_ = c.Set(ctx, PoolStreams, "stream:pod1:/a", []byte("x"), 0)

	if err := c.Clear(ctx, PoolStreams, "streamChildren:pod1:*"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if _, ok, _ := c.Get(ctx, PoolStreams, "streamChildren:pod1:/a"); ok {
		t.Fatal("expected prefix match to be cleared")
	}
	if _, ok, _ := c.Get(ctx, PoolStreams, "stream:pod1:/a"); !ok {
		t.Fatal("expected non-matching key to survive Clear")
	}
}
