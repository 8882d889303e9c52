package store

import (
	"context"

	"go.uber.org/fx"

	"github.com/webitel/im-chat-core/config"
	"github.com/webitel/im-chat-core/internal/service"
)

var Module = fx.Module("store",
	fx.Provide(
		func(cfg *config.Config) (*DB, error) {
			return Open(cfg.Database.Name)
		},
		fx.Annotate(
			func(db *DB) service.ContactResolver { return db },
			fx.As(new(service.ContactResolver)),
		),
	),

	fx.Invoke(func(lc fx.Lifecycle, db *DB) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return db.Close()
			},
		})
	}),
)
