package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"

	"github.com/webitel/im-chat-core/config"
	infrapubsub "github.com/webitel/im-chat-core/infra/pubsub"
	"github.com/webitel/im-chat-core/internal/backpressure"
	"github.com/webitel/im-chat-core/internal/cache"
	"github.com/webitel/im-chat-core/internal/cache/preload"
	"github.com/webitel/im-chat-core/internal/cache/strategy"
	"github.com/webitel/im-chat-core/internal/connmgr"
	"github.com/webitel/im-chat-core/internal/domain/model"
	domainregistry "github.com/webitel/im-chat-core/internal/domain/registry"
	"github.com/webitel/im-chat-core/internal/email"
	amqphandler "github.com/webitel/im-chat-core/internal/handler/amqp"
	"github.com/webitel/im-chat-core/internal/handler/lp"
	wshandler "github.com/webitel/im-chat-core/internal/handler/ws"
	"github.com/webitel/im-chat-core/internal/msgengine"
	"github.com/webitel/im-chat-core/internal/robustness"
	"github.com/webitel/im-chat-core/internal/service"
	"github.com/webitel/im-chat-core/internal/session"
	"github.com/webitel/im-chat-core/internal/stats"
	"github.com/webitel/im-chat-core/internal/store"
	"github.com/webitel/im-chat-core/internal/threadpool"
)

// NewApp wires the whole server. configFile may be empty (defaults + env
// only); when set it also feeds the hot-config watcher.
func NewApp(cfg *config.Config, configFile string) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			ProvideThreadManager,
			ProvideRegistry,
			ProvideSessions,
			ProvideBackpressure,
			ProvideStats,
			ProvideStrategy,
			ProvidePreloader,
			infrapubsub.NewProvider,
			wshandler.NewWSHandler,
			lp.NewLPHandler,
			func(logger *slog.Logger) (*config.Watcher, error) {
				return config.NewWatcher(configFile, logger)
			},
		),
		store.Module,
		cache.Module,
		robustness.Module,
		msgengine.Module,
		connmgr.Module,
		domainregistry.Module,
		service.Module,
		amqphandler.Module,

		fx.Invoke(wireObservers),
		fx.Invoke(startHTTP),
		fx.Invoke(func(lc fx.Lifecycle, pool *threadpool.Manager, sessions *session.Manager) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					sessions.Shutdown(ctx)
					pool.Shutdown()
					return nil
				},
			})
		}),
	)
}

// wireObservers connects the cross-cutting glue: strategy tracking of
// cache accesses, health sources, memory cleanup, and degradation
// handlers.
func wireObservers(
	lc fx.Lifecycle,
	c *cache.Cache,
	engine *msgengine.Engine,
	tracker *strategy.Tracker,
	warmer *preload.Preloader,
	reporter *stats.Reporter,
	pool *threadpool.Manager,
	gate *backpressure.Controller,
	mm *robustness.MemoryMonitor,
	deg *robustness.DegradationManager,
	rec *robustness.Recovery,
	hot *robustness.HotConfig,
	db *store.DB,
	logger *slog.Logger,
) {
	// Every cache access feeds the access-pattern tracker.
	c.OnAccess(func(key string, hit bool) {
		tracker.RecordAccess(key, time.Now())
	})

	// The SMTP client is an external collaborator; without one configured
	// the engine keeps the discard implementation.
	engine.SetMailer(email.Noop{})

	tracker.OnAlert(func(a strategy.Alert) {
		logger.Warn("CACHE_ALERT", "kind", a.Kind, "detail", a.Detail)
	})

	// Predicted-next keys become adaptive warm-up tasks: the loader
	// re-reads through the tiers, which promotes a below-L1 hit into L1.
	warmer.RegisterGenerator(preload.Generator{
		Name: "predicted",
		Fn:   func() []string { return tracker.PredictNext(10, time.Now()) },
		LoaderFor: func(key string) model.Loader {
			return func() (any, error) {
				v, ok := c.Get(context.Background(), key)
				if !ok {
					return nil, fmt.Errorf("key %q no longer cached", key)
				}
				return v, nil
			}
		},
	})

	// Live CPU/memory/latency readings drive the degradation level; without
	// this the manager would only ever move on forced escalations.
	sampler := robustness.NewLoadSampler(deg, 15*time.Second, func() time.Duration {
		return c.Snapshot().AverageLatency
	}, logger)

	// Alert thresholds are evaluated against the live cache snapshot.
	alertTicker := time.NewTicker(time.Minute)
	alertStop := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sampler.Start()
			go func() {
				for {
					select {
					case <-alertStop:
						return
					case <-alertTicker.C:
						snap := c.Snapshot()
						tracker.CheckAlerts(snap.HitRate, snap.AverageLatency, time.Now())
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			alertTicker.Stop()
			close(alertStop)
			sampler.Shutdown()
			warmer.Shutdown()
			return nil
		},
	})

	// Health sources for /healthz and the robustness layer.
	reporter.Register(stats.HealthFunc{SourceName: "thread_pools", Fn: pool.IsHealthy})
	reporter.Register(stats.HealthFunc{SourceName: "backpressure", Fn: func() bool {
		return gate.Level() < backpressure.Critical
	}})

	// Memory pressure: shed the L1 working set before the OS does it for us.
	mm.RegisterCleanup(func(th robustness.MemoryThreshold) (uint64, bool) {
		if th >= robustness.MemoryEmergency {
			before := c.Snapshot().L1.Size
			c.Clear()
			return uint64(before), true
		}
		return 0, true
	})

	// Database outages recover by probing the connection with backoff; the
	// circuit breaker reports the outage, this action clears it.
	rec.Register(model.DatabaseFailure, "database", robustness.RecoveryAction{
		Strategy:     robustness.RetryWithBackoff,
		MaxRetries:   5,
		BackoffDelay: 2 * time.Second,
		IsAsync:      true,
		Action: func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return db.Ping(ctx) == nil
		},
	})

	// Accepted hot reloads are fanned out to subscribers; rejected ones
	// never reach here (validators hold the previous values).
	hot.Subscribe(func(next *config.Config) {
		logger.Info("CONFIG_SUBSCRIBER_NOTIFIED", "l1_max_items", next.Cache.L1.MaxItems)
	})

	for _, lvl := range []robustness.DegradationLevel{
		robustness.DegradationLight,
		robustness.DegradationModerate,
		robustness.DegradationHeavy,
		robustness.DegradationEmergency,
	} {
		deg.RegisterHandler(lvl, func(l robustness.DegradationLevel) {
			logger.Warn("DEGRADATION_ENTERED", "level", l.String())
		})
	}
}

// startHTTP serves the operational HTTP surface next to the framed TCP
// listener: admin probes, the framed-over-websocket transport, and the
// hub-backed delivery endpoints.
func startHTTP(
	lc fx.Lifecycle,
	cfg *config.Config,
	admin chi.Router,
	wsFramed *connmgr.WSEndpoint,
	wsDelivery *wshandler.WSHandler,
	poller *lp.LPHandler,
	logger *slog.Logger,
) {
	root := chi.NewRouter()
	root.Mount("/", admin)
	root.Handle("/ws", wsFramed)
	root.Handle("/events/ws", wsDelivery)
	root.Get("/events/poll/{userID}", poller.Poll)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port+1),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP_SERVER_FAILED", "err", err)
				}
			}()
			logger.Info("HTTP_STARTED", "addr", srv.Addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
