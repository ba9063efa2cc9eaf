package fieldcache

import (
	"context"
	"testing"
)

func TestLRUGetPutRoundTrip(t *testing.T) {
	cache, err := NewLRU(10)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}

	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "type"); err != nil || ok {
		t.Fatalf("Get on empty cache = (_, %v, %v), want (_, false, nil)", ok, err)
	}

	if err := cache.Put(ctx, "type", "string"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := cache.Get(ctx, "type")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit after Put")
	}
	if got != "string" {
		t.Errorf("Get = %q, want %q", got, "string")
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	cache, err := NewLRU(1)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}

	ctx := context.Background()
	_ = cache.Put(ctx, "a", "string")
	_ = cache.Put(ctx, "b", "int")

	if _, ok, _ := cache.Get(ctx, "a"); ok {
		t.Error("expected a to be evicted once capacity 1 is exceeded")
	}
	if _, ok, _ := cache.Get(ctx, "b"); !ok {
		t.Error("expected b to remain cached")
	}
}
