package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/webitel/im-chat-core/config"
	"github.com/webitel/im-chat-core/internal/robustness"
	"github.com/webitel/im-chat-core/internal/threadpool"
)

// Module wires the Multi-Level Cache: a *redis.Client constructed from
// CacheL3Config (nil/disabled degrades every L3 call to a no-op, per
// l3Store.down), and the orchestrating *Cache bound to the Service pool
// for its async L2/L3 mirrors.
var Module = fx.Module("cache",
	fx.Provide(
		func(cfg *config.Config, breakers *robustness.BreakerSet) *redis.Client {
			l3 := cfg.Cache.L3
			if !l3.Enabled {
				return nil
			}
			client := redis.NewClient(&redis.Options{
				Addr:     fmt.Sprintf("%s:%d", l3.Host, l3.Port),
				Password: l3.Password,
				DB:       l3.Database,
				PoolSize: max(l3.MaxConns, 1),
			})
			client.AddHook(NewBreakerHook(breakers.L3))
			return client
		},
		func(cfg *config.Config, pool *threadpool.Manager, redisClient *redis.Client, logger *slog.Logger) *Cache {
			return New(cfg.Cache, pool, redisClient, logger)
		},
	),

	fx.Invoke(func(lc fx.Lifecycle, c *Cache, redisClient *redis.Client) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				c.Shutdown()
				if redisClient != nil {
					return redisClient.Close()
				}
				return nil
			},
		})
	}),
)
