// Package cache implements the multi-level cache: a synchronous L1 tier
// backed by an asynchronously mirrored L2 (disk) and L3 (Redis) tier,
// with promotion-on-read, a category index, and background
// expiration/optimization sweeps. The L1 tier is a plain map rather than
// an lru.Cache because eviction needs per-item metadata (priority,
// hotness, category) a fixed K/V LRU cannot carry.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/webitel/im-chat-core/config"
	"github.com/webitel/im-chat-core/internal/domain/model"
	"github.com/webitel/im-chat-core/internal/threadpool"
)

// Cache is the public entry point to the three tiers.
type Cache struct {
	l1 *l1Store
	l2 *l2Store
	l3 *l3Store

	categories sync.Map // category -> *sync.Map (key -> struct{})

	pool   *threadpool.Manager
	logger *slog.Logger

	cfg config.CacheConfig

	metrics GlobalMetrics

	accessMu sync.RWMutex
	onAccess []func(key string, hit bool)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New wires the three tiers from cfg. redisClient may be nil when L3 is
// disabled.
func New(cfg config.CacheConfig, pool *threadpool.Manager, redisClient *redis.Client, logger *slog.Logger) *Cache {
	c := &Cache{
		l1:     newL1Store(cfg.L1.MaxItems, cfg.L1.MaxSize, EvictionStrategy(cfg.L1.Strategy)),
		l2:     newL2Store(cfg.L2.StoragePath),
		l3:     newL3Store(cfg.L3.Enabled, redisClient, logger),
		pool:   pool,
		logger: logger,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.maintenanceLoop()
	return c
}

// Set performs the synchronous L1 insertion plus an asynchronous mirror to
// L2/L3 on the Service pool. priority defaults to 50.
func (c *Cache) Set(key string, value any, ttl time.Duration, category string, priority int) bool {
	if priority == 0 {
		priority = 50
	}
	if ttl == 0 {
		ttl = c.cfg.DefaultTTL
	}

	now := time.Now()
	item := &model.CacheItem{
		Value: value,
		Metadata: model.CacheMetadata{
			CreatedAt:    now,
			LastAccessed: now,
			Category:     category,
			Priority:     priority,
			Level:        model.LevelL1,
			Size:         estimateSize(key, value),
		},
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		item.Metadata.ExpiresAt = &exp
	}

	c.l1.set(key, item)
	c.indexCategory(category, key)
	c.evictL1IfNeeded()

	c.mirrorAsync(key, item, ttl)
	return true
}

// itemOverhead approximates the fixed per-entry cost: map slot, CacheItem
// struct, metadata timestamps.
const itemOverhead = 96

// estimateSize prices an entry for the L1 byte bound. Strings and byte
// slices are exact; everything else is priced by its JSON encoding, which
// is also what the L2/L3 mirrors will pay to store it.
func estimateSize(key string, value any) uint64 {
	size := uint64(len(key)) + itemOverhead
	switch v := value.(type) {
	case string:
		return size + uint64(len(v))
	case []byte:
		return size + uint64(len(v))
	default:
		if buf, err := json.Marshal(value); err == nil {
			return size + uint64(len(buf))
		}
		return size
	}
}

// mirrorAsync fires the L2/L3 write off the Service pool; its failure does
// not fail the synchronous Set call.
func (c *Cache) mirrorAsync(key string, item *model.CacheItem, ttl time.Duration) {
	if c.pool == nil {
		return
	}
	c.pool.Submit(threadpool.Service, func(ctx context.Context) {
		if err := c.l2.set(key, item); err != nil && c.logger != nil {
			c.logger.Warn("L2_MIRROR_FAILED", "key", key, "err", err)
		}
		c.l3.set(ctx, key, item, ttl)
	}, threadpool.Low)
}

// OnAccess registers an observer invoked after every Get, hit or miss.
// The Strategy tracker subscribes here; observers must not block.
func (c *Cache) OnAccess(fn func(key string, hit bool)) {
	c.accessMu.Lock()
	c.onAccess = append(c.onAccess, fn)
	c.accessMu.Unlock()
}

func (c *Cache) notifyAccess(key string, hit bool) {
	c.accessMu.RLock()
	subs := c.onAccess
	c.accessMu.RUnlock()
	for _, fn := range subs {
		fn(key, hit)
	}
}

// Get probes L1 -> L2 -> L3 in order, promoting on any hit below L1.
// Use the package-level generic Get[T] for typed access.
func (c *Cache) Get(ctx context.Context, key string) (any, bool) {
	start := time.Now()
	hit := false
	defer func() {
		c.metrics.observe(time.Since(start))
		c.notifyAccess(key, hit)
	}()

	now := time.Now()

	if item, ok := c.l1.get(key, now); ok {
		hit = true
		return item.Value, true
	}

	if item, ok := c.l2.get(key, now); ok {
		item.Metadata.Touch(now)
		if c.eligibleForPromotion(item) {
			c.promote(key, item, model.LevelL2)
		} else {
			_ = c.l2.set(key, item)
		}
		hit = true
		return item.Value, true
	}

	if item, ok := c.l3.get(ctx, key, now); ok {
		item.Metadata.Touch(now)
		if c.eligibleForPromotion(item) {
			c.promote(key, item, model.LevelL3)
		} else {
			c.l3.set(ctx, key, item, time.Until(derefOrZero(item.Metadata.ExpiresAt)))
		}
		hit = true
		return item.Value, true
	}

	return nil, false
}

// Get is the typed accessor over Cache.Get.
func Get[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(ctx, key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// promote copies a below-L1 hit up into L1 (and L2, for an L3 hit),
// preserving AccessCount/CreatedAt and only refreshing LastAccessed.
func (c *Cache) promote(key string, item *model.CacheItem, from model.CacheLevel) {
	item.Metadata.LastAccessed = time.Now()
	if item.Metadata.Size == 0 {
		// Records written before size accounting carry no price; re-estimate
		// so the byte bound still sees the promoted copy.
		item.Metadata.Size = estimateSize(key, item.Value)
	}
	c.l1.set(key, item)
	c.evictL1IfNeeded()
	c.indexCategory(item.Metadata.Category, key)
	if from == model.LevelL3 {
		c.mirrorAsync(key, item, time.Until(derefOrZero(item.Metadata.ExpiresAt)))
	}
	c.metrics.Promotions.Add(1)
}

// eligibleForPromotion applies the read-path rule: a hit below L1
// promotes only once it has proven itself hot (accessCount over the
// configured threshold, default 10) and important (priority over 50).
func (c *Cache) eligibleForPromotion(item *model.CacheItem) bool {
	threshold := c.cfg.PromotionThreshold
	if threshold <= 0 {
		threshold = 10
	}
	return item.Metadata.AccessCount > uint64(threshold) && item.Metadata.Priority > 50
}

func derefOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// Remove deletes a key from every tier; idempotent (a second call simply
// reports false without error).
func (c *Cache) Remove(key string) bool {
	removedL1 := c.l1.remove(key)
	removedL2 := c.l2.remove(key)
	var removedL3 bool
	if !c.l3.down() {
		removedL3 = c.l3.remove(context.Background(), key)
	}
	c.uncategorize(key)
	return removedL1 || removedL2 || removedL3
}

func (c *Cache) Exists(key string) bool {
	now := time.Now()
	if c.l1.exists(key, now) {
		return true
	}
	if c.l2.exists(key, now) {
		return true
	}
	_, ok := c.l3.get(context.Background(), key, now)
	return ok
}

func (c *Cache) Clear() {
	c.l1.clear()
	_ = c.l2.clear()
	c.categories = sync.Map{}
}

// ClearCategory removes every key registered under cat from every tier.
func (c *Cache) ClearCategory(cat string) {
	v, ok := c.categories.Load(cat)
	if !ok {
		return
	}
	keys := v.(*sync.Map)
	keys.Range(func(k, _ any) bool {
		c.Remove(k.(string))
		return true
	})
	c.categories.Delete(cat)
}

func (c *Cache) SetMany(items map[string]any, ttl time.Duration, category string, priority int) {
	for k, v := range items {
		c.Set(k, v, ttl, category, priority)
	}
}

func (c *Cache) GetMany(ctx context.Context, keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := c.Get(ctx, k); ok {
			out[k] = v
		}
	}
	return out
}

func (c *Cache) RemoveMany(keys []string) int {
	n := 0
	for _, k := range keys {
		if c.Remove(k) {
			n++
		}
	}
	return n
}

// SetAsync/GetAsync/RemoveAsync hand the call off to the Service pool and
// deliver the result on the returned channel, for callers that don't want
// to block a Message Engine handler on cache I/O.
func (c *Cache) SetAsync(key string, value any, ttl time.Duration, category string, priority int) <-chan bool {
	result := make(chan bool, 1)
	if c.pool == nil {
		result <- c.Set(key, value, ttl, category, priority)
		return result
	}
	c.pool.Submit(threadpool.Service, func(ctx context.Context) {
		result <- c.Set(key, value, ttl, category, priority)
	}, threadpool.Normal)
	return result
}

func (c *Cache) GetAsync(key string) <-chan struct {
	Value any
	Ok    bool
} {
	result := make(chan struct {
		Value any
		Ok    bool
	}, 1)
	if c.pool == nil {
		v, ok := c.Get(context.Background(), key)
		result <- struct {
			Value any
			Ok    bool
		}{v, ok}
		return result
	}
	c.pool.Submit(threadpool.Service, func(ctx context.Context) {
		v, ok := c.Get(ctx, key)
		result <- struct {
			Value any
			Ok    bool
		}{v, ok}
	}, threadpool.Normal)
	return result
}

func (c *Cache) indexCategory(category, key string) {
	if category == "" {
		return
	}
	v, _ := c.categories.LoadOrStore(category, &sync.Map{})
	v.(*sync.Map).Store(key, struct{}{})
}

func (c *Cache) uncategorize(key string) {
	c.categories.Range(func(_, v any) bool {
		v.(*sync.Map).Delete(key)
		return true
	})
}

func (c *Cache) evictL1IfNeeded() {
	if !c.l1.needsEviction() {
		return
	}
	evicted, _ := c.l1.evictToTarget(time.Now())
	if evicted > 0 {
		c.metrics.Evictions.Add(int64(evicted))
	}
}

// maintenanceLoop runs the background expiration sweep (default every
// cleanupInterval, 300s) and the demotion optimizer (every 5 min).
func (c *Cache) maintenanceLoop() {
	defer c.wg.Done()

	cleanupInterval := c.cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = 300 * time.Second
	}
	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	optimizeTicker := time.NewTicker(5 * time.Minute)
	defer optimizeTicker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-cleanupTicker.C:
			c.sweepExpired()
		case <-optimizeTicker.C:
			c.runOptimizer()
		}
	}
}

func (c *Cache) sweepExpired() {
	now := time.Now()
	for k, item := range c.l1.snapshot() {
		if item.Metadata.Expired(now) {
			c.l1.remove(k)
			c.uncategorize(k)
		}
	}
}

// runOptimizer demotes cold L1 keys (unread for longer than
// demotionThreshold) down to L2, leaving L1 eviction to reclaim the space.
// It does not promote hot keys; promotion into L1 happens only on the
// read path.
func (c *Cache) runOptimizer() {
	now := time.Now()
	demotionThreshold := time.Duration(c.cfg.DemotionThreshold) * time.Second
	if demotionThreshold <= 0 {
		demotionThreshold = 100 * time.Second
	}

	for k, item := range c.l1.snapshot() {
		if now.Sub(item.Metadata.LastAccessed) > demotionThreshold {
			if err := c.l2.set(k, item); err == nil {
				c.metrics.Demotions.Add(1)
			}
		}
	}
}

func (c *Cache) Shutdown() {
	close(c.stopCh)
	c.wg.Wait()
}
