// Package protocol implements the wire framing and message-type registry:
// a fixed 7-byte header followed by a UTF-8 JSON body, expressed as
// explicit encode/decode functions returning errors.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the fixed 7-byte header: heartbeatFlag(1) + messageType(2) + messageLength(4).
	HeaderSize = 7

	// MaxBodySize is the largest JSON body accepted.
	MaxBodySize = 16 * 1024 * 1024
)

var (
	ErrInvalidHeartbeatFlag = errors.New("protocol: heartbeatFlag must be 0 or 1")
	ErrZeroLength           = errors.New("protocol: messageLength must be >= 1")
	ErrBodyTooLarge         = errors.New("protocol: messageLength exceeds 16 MiB")
	ErrTruncated            = errors.New("protocol: frame truncated")
)

// Frame is the decoded wire+internal representation of a single message.
type Frame struct {
	Heartbeat   bool
	MessageType MessageType
	Body        []byte
}

// Header holds the parsed fixed-size prefix, exposed separately so callers
// can validate before committing to buffering the body.
type Header struct {
	HeartbeatFlag uint8
	MessageType   MessageType
	MessageLength uint32
}

// ParseHeader reads the first HeaderSize bytes of buf. buf must be at least
// HeaderSize bytes; callers are expected to have already checked length.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrTruncated
	}
	h := Header{
		HeartbeatFlag: buf[0],
		MessageType:   MessageType(binary.BigEndian.Uint16(buf[1:3])),
		MessageLength: binary.BigEndian.Uint32(buf[3:7]),
	}
	return h, validateHeader(h)
}

func validateHeader(h Header) error {
	if h.HeartbeatFlag != 0 && h.HeartbeatFlag != 1 {
		return ErrInvalidHeartbeatFlag
	}
	if h.MessageLength == 0 {
		return ErrZeroLength
	}
	if h.MessageLength > MaxBodySize {
		return ErrBodyTooLarge
	}
	return nil
}

// TryExtractFrame attempts to slice exactly one frame off the front of buf.
// It returns the decoded frame, the number of bytes consumed, and whether a
// full frame was available. A zero consumed count with ok=false means buf
// holds only a partial frame and the caller must wait for more bytes — this
// is how truncated frames are buffered until complete.
func TryExtractFrame(buf []byte) (frame Frame, consumed int, ok bool, err error) {
	if len(buf) < HeaderSize {
		return Frame{}, 0, false, nil
	}
	h, verr := ParseHeader(buf)
	if verr != nil {
		// A malformed header can never become valid by buffering more bytes;
		// this is a ClientProtocolError the caller must surface.
		return Frame{}, 0, false, verr
	}
	total := HeaderSize + int(h.MessageLength)
	if len(buf) < total {
		return Frame{}, 0, false, nil
	}
	body := make([]byte, h.MessageLength)
	copy(body, buf[HeaderSize:total])
	return Frame{
		Heartbeat:   h.HeartbeatFlag == 1,
		MessageType: h.MessageType,
		Body:        body,
	}, total, true, nil
}

// Encode serializes a frame back into wire bytes. encode(decode(bytes)) ==
// bytes for well-formed inputs.
func Encode(f Frame) ([]byte, error) {
	if len(f.Body) == 0 {
		return nil, ErrZeroLength
	}
	if len(f.Body) > MaxBodySize {
		return nil, ErrBodyTooLarge
	}
	out := make([]byte, HeaderSize+len(f.Body))
	if f.Heartbeat {
		out[0] = 1
	}
	binary.BigEndian.PutUint16(out[1:3], uint16(f.MessageType))
	binary.BigEndian.PutUint32(out[3:7], uint32(len(f.Body)))
	copy(out[HeaderSize:], f.Body)
	return out, nil
}

// NewFrame is a small convenience constructor used by handlers composing
// a response.
func NewFrame(t MessageType, body []byte, heartbeat bool) Frame {
	return Frame{Heartbeat: heartbeat, MessageType: t, Body: body}
}

func (h Header) String() string {
	return fmt.Sprintf("Header{hb=%d type=0x%04x len=%d}", h.HeartbeatFlag, uint16(h.MessageType), h.MessageLength)
}
