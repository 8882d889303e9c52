package wsmarshaller

import (
	"encoding/json"

	"github.com/webitel/im-chat-core/internal/domain/event"
	"github.com/webitel/im-chat-core/internal/domain/model"
)

// WSEvent is a generic wrapper for WebSocket messages to provide consistent structure
type WSEvent struct {
	Event   string `json:"event"` // e.g., "message_created", "connected"
	ID      string `json:"id"`    // message or event ID
	SentAt  int64  `json:"sent_at"`
	Payload any    `json:"payload"`
}

// MarshallDeliveryEvent prepares data for WebSocket transmission.
func MarshallDeliveryEvent(ev event.Eventer) ([]byte, error) {
	// The wire payload is cached per fan-out group: marshal once, reuse for
	// every session of the same user.
	if cached, ok := ev.GetCached().([]byte); ok {
		return cached, nil
	}

	res := &WSEvent{
		ID:     ev.GetID(),
		SentAt: ev.GetOccurredAt(),
	}

	switch p := ev.GetPayload().(type) {
	case *model.Message:
		res.Event = "message_created"
		res.Payload = mapMessage(p)
	case *model.ConnectedPayload:
		res.Event = "connected"
		res.Payload = p
	case *model.DisconnectedPayload:
		res.Event = "disconnected"
		res.Payload = p
	default:
		res.Event = "system"
		res.Payload = p
	}

	data, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	ev.SetCached(data)
	return data, nil
}
