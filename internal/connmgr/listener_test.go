package connmgr

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/webitel/im-chat-core/internal/domain/model"
	"github.com/webitel/im-chat-core/internal/protocol"
	"github.com/webitel/im-chat-core/internal/stats"
)

type nopSocket struct{}

func (nopSocket) Write(p []byte) (int, error) { return len(p), nil }
func (nopSocket) Close() error                { return nil }
func (nopSocket) RemoteAddr() string          { return "test" }

func testListener(dispatch func(*model.ClientState, protocol.Frame)) *Listener {
	return &Listener{
		metrics:  stats.NewCollector(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		dispatch: dispatch,
	}
}

func encodeFrame(t *testing.T, mt protocol.MessageType, body any) []byte {
	t.Helper()
	buf, _ := json.Marshal(body)
	wire, err := protocol.Encode(protocol.NewFrame(mt, buf, false))
	if err != nil {
		t.Fatal(err)
	}
	return wire
}

func TestDrainDispatchesFramesInArrivalOrder(t *testing.T) {
	var got []protocol.MessageType
	l := testListener(func(_ *model.ClientState, f protocol.Frame) {
		got = append(got, f.MessageType)
	})

	cs := model.NewClientState(nopSocket{})
	cs.AppendToBuffer(encodeFrame(t, protocol.LoginRequest, map[string]string{"type": "login"}))
	cs.AppendToBuffer(encodeFrame(t, protocol.SendMessage, map[string]string{"type": "send_message"}))
	cs.AppendToBuffer(encodeFrame(t, protocol.Heartbeat, map[string]string{"type": "heartbeat"}))

	if err := l.drainFrames(cs); err != nil {
		t.Fatal(err)
	}

	want := []protocol.MessageType{protocol.LoginRequest, protocol.SendMessage, protocol.Heartbeat}
	if len(got) != len(want) {
		t.Fatalf("dispatched %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTruncatedFrameBuffersUntilComplete(t *testing.T) {
	dispatched := 0
	l := testListener(func(_ *model.ClientState, _ protocol.Frame) { dispatched++ })

	cs := model.NewClientState(nopSocket{})
	wire := encodeFrame(t, protocol.SendMessage, map[string]string{"type": "send_message", "content": "split across reads"})

	// First chunk: header + partial body. Nothing must dispatch.
	cs.AppendToBuffer(wire[:protocol.HeaderSize+3])
	if err := l.drainFrames(cs); err != nil {
		t.Fatal(err)
	}
	if dispatched != 0 {
		t.Fatal("partial frame dispatched")
	}

	// Remainder arrives: exactly one dispatch.
	cs.AppendToBuffer(wire[protocol.HeaderSize+3:])
	if err := l.drainFrames(cs); err != nil {
		t.Fatal(err)
	}
	if dispatched != 1 {
		t.Fatalf("dispatched = %d, want 1", dispatched)
	}
}

func TestMalformedHeaderIsFatalForConnection(t *testing.T) {
	l := testListener(func(_ *model.ClientState, _ protocol.Frame) {
		t.Fatal("malformed frame must not dispatch")
	})

	cs := model.NewClientState(nopSocket{})
	// heartbeatFlag=7 is invalid; buffering more bytes can never fix it.
	bad := []byte{7, 0, 1, 0, 0, 0, 1, '{'}
	cs.AppendToBuffer(bad)

	if err := l.drainFrames(cs); err == nil {
		t.Fatal("expected a protocol error")
	}
}
