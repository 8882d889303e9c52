package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/webitel/im-chat-core/internal/domain/model"
)

// l3Store is the distributed tier. When disabled or the connection is
// down, every operation is a no-op; reconnection is attempted
// lazily on the next call rather than via a background retry loop.
type l3Store struct {
	client  *redis.Client
	enabled bool
	logger  *slog.Logger
	metrics LevelMetrics

	consecutiveFailures int
}

func newL3Store(enabled bool, client *redis.Client, logger *slog.Logger) *l3Store {
	return &l3Store{client: client, enabled: enabled, logger: logger}
}

func (s *l3Store) down() bool {
	return !s.enabled || s.client == nil
}

func (s *l3Store) get(ctx context.Context, key string, now time.Time) (*model.CacheItem, bool) {
	if s.down() {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		s.noteFailure(err)
		s.metrics.Misses.Add(1)
		return nil, false
	}
	s.consecutiveFailures = 0

	var rec l2Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.metrics.Misses.Add(1)
		return nil, false
	}

	item := &model.CacheItem{Value: rec.Value, Metadata: rec.Metadata}
	if item.Metadata.Expired(now) {
		_ = s.client.Del(ctx, key).Err()
		s.metrics.Misses.Add(1)
		return nil, false
	}

	s.metrics.Hits.Add(1)
	return item, true
}

func (s *l3Store) set(ctx context.Context, key string, item *model.CacheItem, ttl time.Duration) bool {
	if s.down() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rec := l2Record{Version: l2RecordVersion, Value: item.Value, Metadata: item.Metadata}
	data, err := json.Marshal(rec)
	if err != nil {
		return false
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		s.noteFailure(err)
		return false
	}
	s.consecutiveFailures = 0
	s.metrics.Count.Add(1)
	return true
}

func (s *l3Store) remove(ctx context.Context, key string) bool {
	if s.down() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		s.noteFailure(err)
		return false
	}
	return n > 0
}

// noteFailure counts consecutive failures and logs them. Breaker state is
// not kept here: the L3 circuit breaker from internal/robustness is
// installed on the Redis client as a hook (redis_breaker.go, module.go).
func (s *l3Store) noteFailure(err error) {
	s.consecutiveFailures++
	if s.logger != nil {
		s.logger.Warn("L3_CACHE_OP_FAILED", "err", err, "consecutive_failures", s.consecutiveFailures)
	}
}
