package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/cache"
)

func TestGetMissOnEmptyCache(t *testing.T) {
	b := New(cache.Config{})
	if _, ok, err := b.Get(context.Background(), "missing"); err != nil || ok {
		t.Fatalf("expected a miss, got ok=%v err=%v", ok, err)
	}
}

func TestSetThenGetRoundTrips(t *testing.T) {
	b := New(cache.Config{})
	ctx := context.Background()
	if err := b.Set(ctx, "k", "v", 0); err != nil {
		t.Fatal(err)
	}
	v, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("expected a hit of %q, got v=%v ok=%v err=%v", "v", v, ok, err)
	}
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	b := New(cache.Config{})
	fixed := time.Now()
	b.now = func() time.Time { return fixed }

	ctx := context.Background()
	if err := b.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatal(err)
	}

	b.now = func() time.Time { return fixed.Add(2 * time.Minute) }
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Fatal("expected the entry to have expired")
	}
}

func TestNegativeTTLNeverExpires(t *testing.T) {
	b := New(cache.Config{})
	fixed := time.Now()
	b.now = func() time.Time { return fixed }

	ctx := context.Background()
	if err := b.Set(ctx, "k", "v", -1); err != nil {
		t.Fatal(err)
	}
	b.now = func() time.Time { return fixed.Add(24 * time.Hour) }
	if _, ok, _ := b.Get(ctx, "k"); !ok {
		t.Fatal("expected a negative TTL entry to never expire")
	}
}

func TestMaxSizeEvictsLeastRecentlyUsed(t *testing.T) {
	b := New(cache.Config{MaxSize: 2})
	ctx := context.Background()

	b.Set(ctx, "a", 1, 0)
	b.Set(ctx, "b", 2, 0)
	b.Get(ctx, "a") // promote a to most-recently-used, leaving b as the LRU entry
	b.Set(ctx, "c", 3, 0)

	if _, ok, _ := b.Get(ctx, "b"); ok {
		t.Fatal("expected b to have been evicted as the least-recently-used entry")
	}
	if _, ok, _ := b.Get(ctx, "a"); !ok {
		t.Fatal("expected a to still be present")
	}
	if _, ok, _ := b.Get(ctx, "c"); !ok {
		t.Fatal("expected c to still be present")
	}
	if b.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", b.Len())
	}
}

func TestDeleteAndClear(t *testing.T) {
	b := New(cache.Config{})
	ctx := context.Background()
	b.Set(ctx, "a", 1, 0)
	b.Set(ctx, "b", 2, 0)

	if err := b.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := b.Get(ctx, "a"); ok {
		t.Fatal("expected a to be gone after Delete")
	}

	if err := b.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 0 {
		t.Fatalf("expected an empty cache after Clear, got %d entries", b.Len())
	}
}

func TestRegisteredUnderInmemoryName(t *testing.T) {
	backend, err := cache.New("inmemory", cache.Config{TTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if backend == nil {
		t.Fatal("expected a non-nil backend")
	}
}
