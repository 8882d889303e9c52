package cache

import (
	"context"
	"testing"
	"time"

	"github.com/webitel/im-chat-core/config"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	cfg := config.CacheConfig{
		L1: config.CacheL1Config{MaxItems: 5, Strategy: "lru"},
		L2: config.CacheL2Config{StoragePath: t.TempDir()},
		L3: config.CacheL3Config{Enabled: false},
	}
	c := New(cfg, nil, nil, nil)
	t.Cleanup(c.Shutdown)
	return c
}

func TestSetThenGetSameTask(t *testing.T) {
	c := testCache(t)

	c.Set("k1", "v1", time.Minute, "", 50)

	v, ok := c.Get(context.Background(), "k1")
	if !ok || v != "v1" {
		t.Fatalf("Get() = %v, %v; want v1, true", v, ok)
	}
}

func TestGetTypedHelper(t *testing.T) {
	c := testCache(t)
	c.Set("k1", 42, time.Minute, "", 50)

	v, ok := Get[int](context.Background(), c, "k1")
	if !ok || v != 42 {
		t.Fatalf("Get[int]() = %v, %v; want 42, true", v, ok)
	}

	if _, ok := Get[string](context.Background(), c, "k1"); ok {
		t.Fatal("Get[string]() on an int value should report false")
	}
}

func TestExpiredItemsNeverReturned(t *testing.T) {
	c := testCache(t)
	c.Set("k1", "v1", time.Nanosecond, "", 50)
	time.Sleep(time.Millisecond)

	if _, ok := c.Get(context.Background(), "k1"); ok {
		t.Fatal("expired item was returned")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	c := testCache(t)
	c.Set("k1", "v1", time.Minute, "", 50)

	if !c.Remove("k1") {
		t.Fatal("first Remove() should report true")
	}
	if c.Remove("k1") {
		t.Fatal("second Remove() should report false")
	}
}

func TestClearCategoryRemovesOnlyTaggedKeys(t *testing.T) {
	c := testCache(t)
	c.Set("a", "1", time.Minute, "session", 50)
	c.Set("b", "2", time.Minute, "session", 50)
	c.Set("c", "3", time.Minute, "other", 50)

	c.ClearCategory("session")

	if c.Exists("a") || c.Exists("b") {
		t.Fatal("ClearCategory left tagged keys behind")
	}
	if !c.Exists("c") {
		t.Fatal("ClearCategory removed an untagged key")
	}
}

func TestL1EvictionAtCapacityBoundTargetsEightyPercent(t *testing.T) {
	c := testCache(t)
	for i := 0; i < 5; i++ {
		c.Set(string(rune('a'+i)), i, time.Minute, "", 50)
	}
	// Sixth insert crosses maxItems=5, triggering an eviction pass down to
	// 80% (4 items).
	c.Set("f", 5, time.Minute, "", 50)

	remaining := len(c.l1.snapshot())
	if remaining > 4 {
		t.Fatalf("l1 holds %d items after eviction, want <= 4", remaining)
	}
}

func TestL1ByteSizeBoundTriggersEviction(t *testing.T) {
	cfg := config.CacheConfig{
		// Item count effectively unbounded; only the byte bound constrains.
		L1: config.CacheL1Config{MaxItems: 1000, MaxSize: 4 * 1024, Strategy: "lru"},
		L2: config.CacheL2Config{StoragePath: t.TempDir()},
		L3: config.CacheL3Config{Enabled: false},
	}
	c := New(cfg, nil, nil, nil)
	t.Cleanup(c.Shutdown)

	payload := make([]byte, 1024)
	for i := 0; i < 8; i++ {
		c.Set(string(rune('a'+i)), payload, time.Minute, "", 50)
	}

	snap := c.l1.snapshot()
	var total uint64
	for k, item := range snap {
		if item.Metadata.Size == 0 {
			t.Fatalf("item %q has no size estimate", k)
		}
		total += item.Metadata.Size
	}
	// Eviction targets 80% of the byte capacity.
	if total > uint64(float64(cfg.L1.MaxSize)*0.8) {
		t.Fatalf("l1 holds %d bytes after eviction, want <= %d", total, int(float64(cfg.L1.MaxSize)*0.8))
	}
	if len(snap) == 0 {
		t.Fatal("eviction removed everything; newest entries should survive")
	}
}

func TestPromotionPreservesCreatedAtAndRefreshesLastAccessed(t *testing.T) {
	c := testCache(t)

	created := time.Now().Add(-time.Hour)

	c.Set("k1", "v1", time.Minute, "", 60)
	// Force the item down to L2 as a demotion would, with a high access
	// count so the promotion predicate (accessCount>10 ∧ priority>50) holds.
	snap := c.l1.snapshot()
	stored := snap["k1"]
	stored.Metadata.CreatedAt = created
	stored.Metadata.AccessCount = 20
	_ = c.l2.set("k1", stored)
	c.l1.remove("k1")

	if _, ok := c.Get(context.Background(), "k1"); !ok {
		t.Fatal("expected L2 hit")
	}

	promoted := c.l1.snapshot()["k1"]
	if promoted == nil {
		t.Fatal("expected promotion to copy item into L1")
	}
	if !promoted.Metadata.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt changed on promotion: got %v, want %v", promoted.Metadata.CreatedAt, created)
	}
	if promoted.Metadata.LastAccessed.Before(created) {
		t.Fatal("LastAccessed was not refreshed on promotion")
	}
}

func TestBelowThresholdHitDoesNotPromote(t *testing.T) {
	c := testCache(t)

	c.Set("k1", "v1", time.Minute, "", 10) // priority below the 50 threshold
	snap := c.l1.snapshot()
	stored := snap["k1"]
	stored.Metadata.AccessCount = 20
	_ = c.l2.set("k1", stored)
	c.l1.remove("k1")

	if _, ok := c.Get(context.Background(), "k1"); !ok {
		t.Fatal("expected L2 hit")
	}
	if _, ok := c.l1.snapshot()["k1"]; ok {
		t.Fatal("low-priority item should not have been promoted to L1")
	}
}

func TestSetManyGetManyRemoveMany(t *testing.T) {
	c := testCache(t)
	c.SetMany(map[string]any{"a": 1, "b": 2, "c": 3}, time.Minute, "", 50)

	got := c.GetMany(context.Background(), []string{"a", "b", "missing"})
	if len(got) != 2 {
		t.Fatalf("GetMany() returned %d entries, want 2", len(got))
	}

	n := c.RemoveMany([]string{"a", "b", "missing"})
	if n != 2 {
		t.Fatalf("RemoveMany() removed %d, want 2", n)
	}
}

func TestSnapshotReflectsHitsAndMisses(t *testing.T) {
	c := testCache(t)
	c.Set("k1", "v1", time.Minute, "", 50)

	c.Get(context.Background(), "k1")
	c.Get(context.Background(), "missing")

	snap := c.Snapshot()
	if snap.TotalRequests != 2 {
		t.Fatalf("TotalRequests = %d, want 2", snap.TotalRequests)
	}
	if snap.L1.Hits != 1 {
		t.Fatalf("L1 hits = %d, want 1", snap.L1.Hits)
	}
}
