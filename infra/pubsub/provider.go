package pubsub

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/webitel/im-chat-core/config"
	"github.com/webitel/im-chat-core/infra/pubsub/factory"
)

// Provider hands out the broker-bound Factory used to build publishers and
// subscribers. Kept as an interface so tests can substitute an in-memory
// implementation without touching a real broker.
type Provider interface {
	GetFactory() factory.Factory
}

type provider struct {
	f factory.Factory
}

// NewProvider builds the single AMQP-backed Factory for the process from
// the AMQP section of Config.
func NewProvider(cfg *config.Config, logger watermill.LoggerAdapter) Provider {
	return &provider{f: factory.New(cfg.AMQP.URL, logger)}
}

func (p *provider) GetFactory() factory.Factory {
	return p.f
}
