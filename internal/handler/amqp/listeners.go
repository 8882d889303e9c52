package amqp

import (
	"context"
	"fmt"

	"github.com/webitel/im-chat-core/internal/domain/event"
	"github.com/webitel/im-chat-core/internal/service/dto"
)

// OnMessageCreatedV1 enriches the participants of a freshly persisted
// message and turns it into the per-recipient event that Bind fans out
// locally and re-publishes for other nodes.
func (h *MessageHandler) OnMessageCreatedV1(ctx context.Context, userID uint64, raw *dto.MessageV1) (event.Eventer, error) {
	from, to, err := h.enricher.ResolvePeers(ctx, raw.From.ToDomain(), raw.To.ToDomain(), raw.DomainID)
	if err != nil {
		return nil, fmt.Errorf("enrich participants: %w", err)
	}

	msg := raw.ToDomain()
	return event.NewMessageEvent(msg, userID, event.MessageCreated, from, to), nil
}
