package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/im-chat-core/internal/domain/event"
)

// DomainHandler defines the functional signature for business logic.
type DomainHandler[T any] func(ctx context.Context, userID uint64, payload *T) (event.Eventer, error)

// [INFRASTRUCTURE_BRIDGE]
// Bind connects Watermill to Domain logic, handling Panic Recovery, Locality, and Fan-out.
func Bind[T any](h *MessageHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		// [PANIC_RECOVERY]
		// Safely handle runtime panics to keep the consumer alive.
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
			}
		}()

		// [IDENTIFICATION]
		// Extract the recipient's numeric user ID from metadata for routing decisions.
		userID, ok := resolveUserID(msg)
		if !ok {
			h.logger.Warn("ROUTING_FAILED: recipient_missing", "msg_id", msg.UUID)
			return nil // ACK: Invalid routing is a terminal state.
		}

		// [LOCALITY_FILTER]
		// Distributed scaling: process only if the target user is connected to THIS node.
		if !h.hub.IsConnected(userID) {
			return nil // ACK: Handled by another instance.
		}

		// [DECODING]
		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			h.logger.Error("DECODE_FAILED", "err", err, "msg_id", msg.UUID)
			return nil // ACK: Poison Pill protection.
		}

		// [EXECUTION]
		// Domain logic execution with enriched context (TraceID).
		ev, err := fn(msg.Context(), userID, payload)
		if err != nil {
			return err // NACK: Business failure triggers Retry policy.
		}

		if ev == nil {
			return nil
		}

		// [FAN_OUT_DISPATCH]
		// 1. Local delivery (WebSocket/long-poll).
		h.hub.Broadcast(ev)

		// 2. Global delivery (RabbitMQ) for multi-node synchronization.
		if _, ok := ev.(event.Exportable); ok {
			if err := h.dispatcher.Publish(msg.Context(), ev); err != nil {
				return fmt.Errorf("GLOBAL_DISPATCH_FAILED: %w", err)
			}
		}

		return nil
	}
}

// resolveUserID reads the physical recipient's connection-routing user ID
// from the x-user-id header set by the publisher (internal/adapter/pubsub
// dispatcher). The routing key itself carries no parseable user ID, only
// domain/peer/subject segments used for topic exchange binding.
func resolveUserID(msg *message.Message) (uint64, bool) {
	raw := msg.Metadata.Get("x-user-id")
	if raw == "" {
		return 0, false
	}
	userID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return userID, true
}
