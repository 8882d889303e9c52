package amqp

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	pubsubadapter "github.com/webitel/im-chat-core/internal/adapter/pubsub"
	"github.com/webitel/im-chat-core/internal/domain/registry"
	"github.com/webitel/im-chat-core/internal/service"
)

const (
	// MessageTopicV1 matches the routing keys produced by
	// event.MessageEvent.GetRoutingKey: im_chat.v1.{domain_id}.{peer_type}.{subject}.message.created
	MessageTopicV1 = "im_chat.v1.*.*.*.message.created"
	MessageQueueV1 = "im_chat.message.created.v1"
)

// MessageHandler bridges AMQP-delivered domain events to the in-process
// Hub (local fan-out) and back out to the broker for cross-node delivery.
type MessageHandler struct {
	hub        registry.Hubber
	dispatcher pubsubadapter.EventDispatcher
	enricher   service.Enricher
	logger     *slog.Logger
}

func NewMessageHandler(hub registry.Hubber, dispatcher pubsubadapter.EventDispatcher, enricher service.Enricher, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{hub: hub, dispatcher: dispatcher, enricher: enricher, logger: logger}
}

// RegisterHandlers configures AMQP subscriptions for this node. Every node
// consumes from its own uniquely-named queue bound to the shared exchange,
// so a broadcast event reaches every instance; Bind's locality filter then
// drops it on nodes that don't hold the target user's connection.
func (h *MessageHandler) RegisterHandlers(router *message.Router, subProvider *pubsubadapter.SubscriberProvider) error {
	nodeID, err := os.Hostname()
	if err != nil {
		nodeID = watermill.NewShortUUID()
	}

	routes := []struct {
		topic   string
		queue   string
		handler message.NoPublishHandlerFunc
	}{
		{
			topic:   MessageTopicV1,
			queue:   MessageQueueV1,
			handler: Bind(h, h.OnMessageCreatedV1),
		},
	}

	for _, r := range routes {
		uniqueQueue := fmt.Sprintf("%s.%s", r.queue, nodeID)

		sub, err := subProvider.Build(uniqueQueue, DeliveryExchange, r.topic)
		if err != nil {
			return fmt.Errorf("failed to build subscriber for %s: %w", uniqueQueue, err)
		}

		router.AddNoPublisherHandler(
			uniqueQueue+"_executor",
			r.topic,
			sub,
			r.handler,
		)
	}
	return nil
}
