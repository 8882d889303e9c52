package cache

import (
	"context"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/webitel/im-chat-core/internal/robustness"
)

// breakerHook routes every Redis command through the L3 circuit breaker:
// while the breaker is Open, commands fail fast without touching the
// connection pool, and the cache's no-op-on-down behavior takes over.
type breakerHook struct {
	breaker *robustness.Breaker
}

// NewBreakerHook wraps an L3 client; install with client.AddHook.
func NewBreakerHook(b *robustness.Breaker) redis.Hook {
	return breakerHook{breaker: b}
}

func (h breakerHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		res, err := h.breaker.Execute(func() (any, error) {
			return next(ctx, network, addr)
		})
		if err != nil {
			return nil, err
		}
		return res.(net.Conn), nil
	}
}

func (h breakerHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		return h.breaker.Do(func() error {
			return next(ctx, cmd)
		})
	}
}

func (h breakerHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		return h.breaker.Do(func() error {
			return next(ctx, cmds)
		})
	}
}
