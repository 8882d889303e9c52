package event

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/webitel/im-chat-core/internal/domain/model"
)

var (
	_ Eventer    = (*MessageEvent)(nil)
	_ Exportable = (*MessageEvent)(nil)
)

// MessageEvent is a domain event wrapper that facilitates the "Fan-out" delivery pattern.
//
// [STRATEGY]
// It distinguishes between:
//   - [BUSINESS_PEERS] (message.From/To): Logical participants (The "Who").
//   - [ROUTING_TARGET] (UserID): The physical recipient of this event instance (The "Where").
//
// This allows "Stateless Horizontal Scaling" where every node can check
// hub.IsConnected(UserID) to decide if it should handle the delivery.
type MessageEvent struct {
	ID      uuid.UUID
	Message *model.Message
	UserID  uint64    // [PHYSICAL_RECIPIENT] Target connection owner
	Kind    EventKind // MessageCreated or MessageDelivered
	Cached  any       // pre-marshaled wire payload, set once per fan-out group
}

// NewMessageEvent initializes the event and binds enriched peers.
//
// [NOTE] Even if the message is sent to a Group (message.To),
// the 'UserID' must be the ID of the individual subscriber.
func NewMessageEvent(msg *model.Message, userID uint64, kind EventKind, from, to model.Peer) *MessageEvent {
	msg.From = from
	msg.To = to

	return &MessageEvent{
		ID:      uuid.New(),
		Message: msg,
		UserID:  userID,
		Kind:    kind,
	}
}

func (e *MessageEvent) GetID() string              { return e.ID.String() }
func (e *MessageEvent) GetPayload() any            { return e.Message }
func (e *MessageEvent) GetUserID() uint64          { return e.UserID }
func (e *MessageEvent) GetOccurredAt() int64       { return e.Message.CreatedAt }
func (e *MessageEvent) GetKind() EventKind         { return e.Kind }
func (e *MessageEvent) GetPriority() EventPriority { return PriorityHigh }
func (e *MessageEvent) GetCached() any             { return e.Cached }
func (e *MessageEvent) SetCached(v any)            { e.Cached = v }

// GetRoutingKey generates the broker routing topic used for cross-node
// fan-out: im_chat.v1.{domain_id}.{peer_type}.{subject}.message.created
func (e *MessageEvent) GetRoutingKey() string {
	peerType := "contact"

	issuer := strings.ToLower(e.Message.To.Issuer)
	if strings.Contains(issuer, "bot") || strings.Contains(issuer, "schema") {
		peerType = "bot"
	}

	return fmt.Sprintf("im_chat.v1.%d.%s.%s.message.created",
		e.Message.DomainID,
		peerType,
		e.Message.To.Sub,
	)
}
