package pubsub

import (
	"github.com/ThreeDotsLabs/watermill/message"

	infrapubsub "github.com/webitel/im-chat-core/infra/pubsub"
	"github.com/webitel/im-chat-core/infra/pubsub/factory"
)

// SubscriberProvider builds durable, per-node queues bound to a shared
// topic exchange so every node in the cluster receives every fan-out
// event.
type SubscriberProvider struct {
	factory factory.Factory
}

func NewSubscriberProvider(p infrapubsub.Provider) *SubscriberProvider {
	return &SubscriberProvider{factory: p.GetFactory()}
}

// Build binds queueName to exchange/routingKey and returns a subscriber
// over that queue.
func (sp *SubscriberProvider) Build(queueName, exchange, routingKey string) (message.Subscriber, error) {
	return sp.factory.BuildSubscriber(&factory.SubscriberConfig{
		Queue: queueName,
		Exchange: factory.ExchangeConfig{
			Name:    exchange,
			Type:    "topic",
			Durable: true,
		},
		RoutingKey: routingKey,
	})
}
