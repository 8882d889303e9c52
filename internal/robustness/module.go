package robustness

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/webitel/im-chat-core/config"
	"github.com/webitel/im-chat-core/internal/domain/model"
	"github.com/webitel/im-chat-core/internal/threadpool"
)

var Module = fx.Module("robustness",
	fx.Provide(
		// An opening breaker is itself a failure signal: feed it into the
		// recovery registry so registered actions (and Emergency escalation
		// for severe cases) run without a separate observer.
		func(rec *Recovery, logger *slog.Logger) *BreakerSet {
			return NewBreakerSet(logger, func(name string, from, to State) {
				if to != Open {
					return
				}
				ft := model.NetworkFailure
				if name == "database" {
					ft = model.DatabaseFailure
				}
				rec.ReportFailure(model.FailureInfo{
					Type:        ft,
					Component:   name,
					Description: "circuit opened after consecutive failures",
					Severity:    6,
				})
			})
		},
		func(logger *slog.Logger) *MemoryMonitor {
			return NewMemoryMonitor(5*time.Second, logger)
		},
		func(logger *slog.Logger) *StarvationDetector {
			return NewStarvationDetector(30*time.Second, logger)
		},
		NewDegradationManager,
		func(pool *threadpool.Manager, degradation *DegradationManager, logger *slog.Logger) *Recovery {
			return NewRecovery(pool, degradation, logger)
		},
		func(cfg *config.Config, watcher *config.Watcher, logger *slog.Logger) *HotConfig {
			h := NewHotConfig(cfg, watcher, logger)
			h.RegisterValidator(ValidateBaseline)
			return h
		},
	),

	fx.Invoke(func(lc fx.Lifecycle, mm *MemoryMonitor, sd *StarvationDetector) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				mm.Start()
				sd.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				mm.Shutdown()
				sd.Shutdown()
				return nil
			},
		})
	}),
)
