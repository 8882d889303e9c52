package connmgr

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("connmgr",
	fx.Provide(
		NewListener,
		NewWSEndpoint,
		NewAdminRouter,
	),

	fx.Invoke(func(lc fx.Lifecycle, l *Listener) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return l.Start()
			},
			OnStop: func(ctx context.Context) error {
				l.Shutdown()
				return nil
			},
		})
	}),
)
