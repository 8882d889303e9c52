package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboundEventer defines the contract for events that are being published
// from this service to the outside world (e.g. cache-invalidation fan-out
// across nodes, or delivery receipts headed for the message broker).
type OutboundEventer interface {
	GetRoutingKey() string
	GetExchange() string
	ToJSON() ([]byte, error)
}

// OutboundEvent is a concrete, broker-agnostic implementation.
type OutboundEvent struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	UserID    uint64 `json:"user_id"`
	Kind      string `json:"kind"`
	Exchange  string `json:"-"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// NewOutboundEvent creates a fresh event ready for publishing.
func NewOutboundEvent(userID uint64, kind, exchange string, payload any) *OutboundEvent {
	return &OutboundEvent{
		ID:        uuid.NewString(),
		Source:    "im-chat-core",
		UserID:    userID,
		Kind:      kind,
		Exchange:  exchange,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

func (e *OutboundEvent) GetRoutingKey() string { return e.Kind }
func (e *OutboundEvent) GetExchange() string   { return e.Exchange }
func (e *OutboundEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
