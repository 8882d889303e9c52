package msgengine

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/im-chat-core/internal/backpressure"
	"github.com/webitel/im-chat-core/internal/registry"
	"github.com/webitel/im-chat-core/internal/robustness"
	"github.com/webitel/im-chat-core/internal/session"
	"github.com/webitel/im-chat-core/internal/stats"
	"github.com/webitel/im-chat-core/internal/store"
	"github.com/webitel/im-chat-core/internal/threadpool"
)

var Module = fx.Module("msgengine",
	fx.Provide(
		func(
			reg *registry.Registry,
			sessions *session.Manager,
			db *store.DB,
			pool *threadpool.Manager,
			breakers *robustness.BreakerSet,
			gate *backpressure.Controller,
			metrics *stats.Collector,
			logger *slog.Logger,
		) *Engine {
			return New(reg, sessions, db, pool, breakers, gate, metrics, logger)
		},
	),
)
