package cache

import (
	"sync/atomic"
	"time"
)

// LevelMetrics tracks the per-level counters: hits, misses, size, count.
type LevelMetrics struct {
	Hits   atomic.Int64
	Misses atomic.Int64
	Count  atomic.Int64
	Size   atomic.Int64
}

func (m *LevelMetrics) snapshot() LevelSnapshot {
	return LevelSnapshot{
		Hits:   m.Hits.Load(),
		Misses: m.Misses.Load(),
		Count:  m.Count.Load(),
		Size:   m.Size.Load(),
	}
}

type LevelSnapshot struct {
	Hits   int64
	Misses int64
	Count  int64
	Size   int64
}

// GlobalMetrics tracks the cache-wide counters.
type GlobalMetrics struct {
	TotalRequests atomic.Int64
	totalLatency  atomic.Int64 // nanoseconds, for averageLatency
	MaxLatency    atomic.Int64 // nanoseconds
	Evictions     atomic.Int64
	Promotions    atomic.Int64
	Demotions     atomic.Int64
}

func (m *GlobalMetrics) observe(d time.Duration) {
	m.TotalRequests.Add(1)
	m.totalLatency.Add(int64(d))
	for {
		cur := m.MaxLatency.Load()
		if int64(d) <= cur {
			return
		}
		if m.MaxLatency.CompareAndSwap(cur, int64(d)) {
			return
		}
	}
}

// Snapshot is a single read-and-copy over every counter (individual
// atomics read without cross-counter atomicity is acceptable).
type Snapshot struct {
	L1                  LevelSnapshot
	L2                  LevelSnapshot
	L3                  LevelSnapshot
	TotalRequests       int64
	AverageLatency      time.Duration
	MaxLatency          time.Duration
	Evictions           int64
	Promotions          int64
	Demotions           int64
	HitRate             float64
}

func (c *Cache) Snapshot() Snapshot {
	l1 := c.l1.metrics.snapshot()
	l2 := c.l2.metrics.snapshot()
	l3 := c.l3.metrics.snapshot()

	total := c.metrics.TotalRequests.Load()
	avg := time.Duration(0)
	if total > 0 {
		avg = time.Duration(c.metrics.totalLatency.Load() / total)
	}

	hits := l1.Hits + l2.Hits + l3.Hits
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Snapshot{
		L1:             l1,
		L2:             l2,
		L3:             l3,
		TotalRequests:  total,
		AverageLatency: avg,
		MaxLatency:     time.Duration(c.metrics.MaxLatency.Load()),
		Evictions:      c.metrics.Evictions.Load(),
		Promotions:     c.metrics.Promotions.Load(),
		Demotions:      c.metrics.Demotions.Load(),
		HitRate:        hitRate,
	}
}
