package protocol

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := NewFrame(LoginRequest, []byte(`{"type":"login"}`), false)
	wire, err := Encode(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, consumed, ok, err := TryExtractFrame(wire)
	if err != nil || !ok {
		t.Fatalf("decode: err=%v ok=%v", err, ok)
	}
	if consumed != len(wire) {
		t.Fatalf("consumed = %d, want %d", consumed, len(wire))
	}
	if decoded.MessageType != LoginRequest || string(decoded.Body) != string(f.Body) {
		t.Fatalf("decoded = %+v", decoded)
	}

	reencoded, err := Encode(decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if string(reencoded) != string(wire) {
		t.Fatalf("round trip mismatch")
	}
}

func TestTryExtractFramePartial(t *testing.T) {
	full, _ := Encode(NewFrame(Heartbeat, []byte(`{}`), true))
	partial := full[:len(full)-1]

	_, consumed, ok, err := TryExtractFrame(partial)
	if err != nil || ok || consumed != 0 {
		t.Fatalf("expected buffered-partial result, got consumed=%d ok=%v err=%v", consumed, ok, err)
	}
}

func TestMessageLengthBoundaries(t *testing.T) {
	mkHeader := func(length uint32) []byte {
		h := make([]byte, HeaderSize)
		h[0] = 0
		h[1], h[2] = byte(LoginRequest>>8), byte(LoginRequest)
		h[3] = byte(length >> 24)
		h[4] = byte(length >> 16)
		h[5] = byte(length >> 8)
		h[6] = byte(length)
		return h
	}

	if _, err := ParseHeader(mkHeader(0)); err != ErrZeroLength {
		t.Fatalf("want ErrZeroLength, got %v", err)
	}

	if _, err := ParseHeader(mkHeader(MaxBodySize)); err != nil {
		t.Fatalf("exact max body size should be accepted: %v", err)
	}

	if _, err := ParseHeader(mkHeader(MaxBodySize + 1)); err != ErrBodyTooLarge {
		t.Fatalf("want ErrBodyTooLarge, got %v", err)
	}
}

func TestInvalidHeartbeatFlag(t *testing.T) {
	buf := []byte{2, 0, 1, 0, 0, 0, 1, 'x'}
	if _, _, _, err := TryExtractFrame(buf); err != ErrInvalidHeartbeatFlag {
		t.Fatalf("want ErrInvalidHeartbeatFlag, got %v", err)
	}
}
