// Package factory builds watermill publishers and subscribers bound to a
// single AMQP broker, hiding the exchange/queue/binding bookkeeping behind
// small config structs.
package factory

import (
	amqpwm "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// ExchangeConfig describes the topic exchange a publisher writes to or a
// subscriber binds against.
type ExchangeConfig struct {
	Name    string
	Type    string // "topic", "fanout", "direct"
	Durable bool
}

// PublisherConfig configures a single topic publisher.
type PublisherConfig struct {
	Exchange ExchangeConfig
}

// SubscriberConfig configures a durable queue bound to topic(s) on an
// existing exchange, with each node consuming from its own queue so
// fan-out events reach every instance.
type SubscriberConfig struct {
	Queue      string
	Exchange   ExchangeConfig
	RoutingKey string
}

// Factory builds watermill publishers/subscribers against one broker URL.
type Factory interface {
	BuildPublisher(cfg *PublisherConfig) (message.Publisher, error)
	BuildSubscriber(cfg *SubscriberConfig) (message.Subscriber, error)
}

type amqpFactory struct {
	amqpURI string
	logger  watermill.LoggerAdapter
}

// New returns a Factory backed by a single RabbitMQ connection URI.
func New(amqpURI string, logger watermill.LoggerAdapter) Factory {
	return &amqpFactory{amqpURI: amqpURI, logger: logger}
}

func (f *amqpFactory) BuildPublisher(cfg *PublisherConfig) (message.Publisher, error) {
	conf := amqpwm.NewDurablePubSubConfig(f.amqpURI, nil)
	conf.Exchange = amqpwm.ExchangeConfig{
		GenerateName: func(topic string) string { return cfg.Exchange.Name },
		Type:         cfg.Exchange.Type,
		Durable:      cfg.Exchange.Durable,
	}
	return amqpwm.NewPublisher(conf, f.logger)
}

func (f *amqpFactory) BuildSubscriber(cfg *SubscriberConfig) (message.Subscriber, error) {
	conf := amqpwm.NewDurablePubSubConfig(f.amqpURI, func(topic string) string { return cfg.Queue })
	conf.Exchange = amqpwm.ExchangeConfig{
		GenerateName: func(topic string) string { return cfg.Exchange.Name },
		Type:         cfg.Exchange.Type,
		Durable:      cfg.Exchange.Durable,
	}
	conf.QueueBind.GenerateRoutingKey = func(topic string) string {
		if cfg.RoutingKey != "" {
			return cfg.RoutingKey
		}
		return topic
	}
	return amqpwm.NewSubscriber(conf, f.logger)
}
