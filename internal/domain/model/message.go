package model

import "github.com/google/uuid"

//go:generate stringer -type=PeerType
type PeerType int16

const (
	// [ZERO_VALUE_GUARD] WE START FROM 1 TO DISTINGUISH FROM UNINITIALIZED DATA
	PeerUser PeerType = iota + 1
	PeerGroup
	PeerChannel
	PeerBot
)

type Peer struct {
	ID     uuid.UUID
	Type   PeerType
	Name   string
	Sub    string
	Issuer string
}

// NewPeer is a small constructor kept for parity with the enrichment path.
func NewPeer(id uuid.UUID, t PeerType) Peer {
	return Peer{ID: id, Type: t}
}

// GetRoutingParts returns the (subject, issuer) pair used to build
// broker routing keys without leaking Peer internals to callers.
func (p Peer) GetRoutingParts() (string, string) {
	return p.Sub, p.Issuer
}

// DeliveryStatus models the explicit pending->delivered->read state
// machine: the engine never collapses "delivered" and "read".
type DeliveryStatus int8

const (
	StatusPending DeliveryStatus = iota
	StatusDelivered
	StatusRead
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	default:
		return "unknown"
	}
}

// MessageType distinguishes the payload kind carried by a chat message.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// Message is the core persisted chat entity.
type Message struct {
	ID        uuid.UUID
	ThreadID  uuid.UUID
	DomainID  int64
	From      Peer
	To        Peer
	Text      string
	Type      MessageType
	Status    DeliveryStatus
	CreatedAt int64
	UpdatedAt int64
	Documents []*Document
	Images    []*Image
	Metadata  map[string]any
}

type Document struct {
	ID       string
	URL      string
	FileName string
	MimeType string
	Size     int64
}

type Image struct {
	ID         string
	URL        string
	FileName   string
	MimeType   string
	Thumbnails []string
}

// Group models the many-recipient chat entity.
type Group struct {
	ID        uuid.UUID
	Name      string
	Members   []uuid.UUID
	CreatedAt int64

	// KeySalt is the stable per-group salt for key derivation. It is
	// persisted with the group and never regenerated per call.
	KeySalt []byte
}
