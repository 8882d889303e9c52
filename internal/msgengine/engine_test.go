package msgengine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/webitel/im-chat-core/internal/backpressure"
	"github.com/webitel/im-chat-core/internal/domain/model"
	"github.com/webitel/im-chat-core/internal/protocol"
	"github.com/webitel/im-chat-core/internal/registry"
	"github.com/webitel/im-chat-core/internal/robustness"
	"github.com/webitel/im-chat-core/internal/session"
	"github.com/webitel/im-chat-core/internal/stats"
	"github.com/webitel/im-chat-core/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSocket records every frame written to it.
type fakeSocket struct {
	mu     sync.Mutex
	frames []protocol.Frame
}

func (s *fakeSocket) Write(p []byte) (int, error) {
	f, _, ok, err := protocol.TryExtractFrame(p)
	if err == nil && ok {
		s.mu.Lock()
		s.frames = append(s.frames, f)
		s.mu.Unlock()
	}
	return len(p), nil
}
func (s *fakeSocket) Close() error       { return nil }
func (s *fakeSocket) RemoteAddr() string { return "127.0.0.1:50000" }

func (s *fakeSocket) lastFrame(t *testing.T) protocol.Frame {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		t.Fatal("no frames written")
	}
	return s.frames[len(s.frames)-1]
}

func (s *fakeSocket) framesOf(mt protocol.MessageType) []protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protocol.Frame
	for _, f := range s.frames {
		if f.MessageType == mt {
			out = append(out, f)
		}
	}
	return out
}

// fakeStore implements Store in memory.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*store.User
	byName   map[string]*store.User
	messages map[string]store.ChatMessage
	nextID   uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*store.User),
		byName:   make(map[string]*store.User),
		messages: make(map[string]store.ChatMessage),
	}
}

func (f *fakeStore) CreateUser(_ context.Context, username, email, password, displayName string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byName[username]; ok {
		return nil, store.ErrUserExists
	}
	f.nextID++
	u := &store.User{ID: f.nextID, Username: username, Email: email, DisplayName: displayName}
	f.users[username+":"+password] = u
	f.byName[username] = u
	return u, nil
}

func (f *fakeStore) VerifyCredentials(_ context.Context, ident, password string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[ident+":"+password]; ok {
		return u, nil
	}
	return nil, store.ErrBadCredentials
}

func (f *fakeStore) GetUserByName(_ context.Context, username string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byName[username]; ok {
		return u, nil
	}
	return nil, store.ErrUserNotFound
}

func (f *fakeStore) SaveMessage(_ context.Context, msg store.ChatMessage) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.messages[msg.MessageID]; ok {
		return false, nil
	}
	f.messages[msg.MessageID] = msg
	return true, nil
}

func (f *fakeStore) UpdateMessageStatus(_ context.Context, id string, status model.DeliveryStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.messages[id]; ok && status > m.Status {
		m.Status = status
		f.messages[id] = m
	}
	return nil
}

func (f *fakeStore) PendingFor(_ context.Context, receiver string, limit int) ([]store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ChatMessage
	for _, m := range f.messages {
		if m.Receiver == receiver && m.Status == model.StatusPending {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) status(id string) model.DeliveryStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[id].Status
}

type testRig struct {
	engine   *Engine
	registry *registry.Registry
	sessions *session.Manager
	db       *fakeStore
	gate     *backpressure.Controller
	metrics  *stats.Collector
}

func newRig(t *testing.T, queueSize int) *testRig {
	t.Helper()
	logger := testLogger()
	reg := registry.New()
	sessions := session.New(session.WithLogger(logger), session.WithSweepInterval(time.Hour))
	t.Cleanup(func() { sessions.Shutdown(context.Background()) })
	db := newFakeStore()
	gate := backpressure.New(queueSize, logger)
	t.Cleanup(gate.Shutdown)
	metrics := stats.NewCollector()

	e := New(reg, sessions, db, nil, robustness.NewBreakerSet(logger, nil), gate, metrics, logger)
	return &testRig{engine: e, registry: reg, sessions: sessions, db: db, gate: gate, metrics: metrics}
}

func (r *testRig) connect(t *testing.T) (*model.ClientState, *fakeSocket) {
	t.Helper()
	sock := &fakeSocket{}
	cs := model.NewClientState(sock)
	if err := r.registry.Insert(uuid.New(), cs); err != nil {
		t.Fatal(err)
	}
	return cs, sock
}

func dispatch(e *Engine, cs *model.ClientState, mt protocol.MessageType, body any) {
	buf, _ := json.Marshal(body)
	e.Dispatch(cs, protocol.NewFrame(mt, buf, false))
}

func TestHappyPathLogin(t *testing.T) {
	rig := newRig(t, 100)
	rig.db.CreateUser(context.Background(), "alice", "alice@example.com", "p", "Alice")

	cs, sock := rig.connect(t)
	dispatch(rig.engine, cs, protocol.LoginRequest, loginRequest{Type: "login", UsernameOrEmail: "alice", Password: "p"})

	frame := sock.lastFrame(t)
	if frame.MessageType != protocol.LoginResponse {
		t.Fatalf("reply type = %v", frame.MessageType)
	}
	var resp loginResponse
	if err := json.Unmarshal(frame.Body, &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Fatalf("login failed: %s", resp.Reason)
	}
	if !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(resp.Token) {
		t.Fatalf("token %q is not 32 hex chars", resp.Token)
	}
	if resp.UserInfo == nil || resp.UserInfo.ID == 0 {
		t.Fatal("user_info missing")
	}

	sess, err := rig.sessions.Validate(resp.Token)
	if err != nil || sess.UserID != resp.UserInfo.ID {
		t.Fatalf("validate(token) = %v, %v", sess, err)
	}
	if !cs.Authenticated() {
		t.Fatal("ClientState not bound to user")
	}
}

func TestLoginFailureRetainsNoState(t *testing.T) {
	rig := newRig(t, 100)
	cs, sock := rig.connect(t)

	dispatch(rig.engine, cs, protocol.LoginRequest, loginRequest{Type: "login", UsernameOrEmail: "ghost", Password: "x"})

	var resp loginResponse
	json.Unmarshal(sock.lastFrame(t).Body, &resp)
	if resp.Success {
		t.Fatal("ghost login succeeded")
	}
	if cs.Authenticated() {
		t.Fatal("failed login bound a user")
	}
	if rig.metrics.Get(stats.AuthFailures) != 1 {
		t.Fatal("auth failure not counted")
	}
}

func TestMessageCrossDelivery(t *testing.T) {
	rig := newRig(t, 100)
	ctx := context.Background()
	rig.db.CreateUser(ctx, "alice", "a@x.com", "p", "")
	rig.db.CreateUser(ctx, "bob", "b@x.com", "p", "")

	alice, aliceSock := rig.connect(t)
	bob, bobSock := rig.connect(t)
	dispatch(rig.engine, alice, protocol.LoginRequest, loginRequest{Type: "login", UsernameOrEmail: "alice", Password: "p"})
	dispatch(rig.engine, bob, protocol.LoginRequest, loginRequest{Type: "login", UsernameOrEmail: "bob", Password: "p"})

	dispatch(rig.engine, alice, protocol.SendMessage, sendMessageRequest{
		Type: "send_message", MessageID: "m1", Sender: "alice", Receiver: "bob",
		Content: "hi", MessageType: "text", Timestamp: 1,
	})

	// Bob receives the message.
	got := bobSock.framesOf(protocol.MessageReceived)
	if len(got) != 1 {
		t.Fatalf("bob received %d message frames, want 1", len(got))
	}
	var recv messageReceived
	json.Unmarshal(got[0].Body, &recv)
	if recv.MessageID != "m1" || recv.Sender != "alice" || recv.Content != "hi" {
		t.Fatalf("wrong delivery: %+v", recv)
	}

	// Alice gets the ack; persisted row is delivered.
	var ack messageSentAck
	json.Unmarshal(aliceSock.lastFrame(t).Body, &ack)
	if ack.Type != "message_sent" || ack.MessageID != "m1" {
		t.Fatalf("wrong ack: %+v", ack)
	}
	if rig.db.status("m1") != model.StatusDelivered {
		t.Fatalf("persisted status = %v, want delivered", rig.db.status("m1"))
	}
}

func TestDuplicateSendIsIdempotent(t *testing.T) {
	rig := newRig(t, 100)
	ctx := context.Background()
	rig.db.CreateUser(ctx, "alice", "a@x.com", "p", "")
	rig.db.CreateUser(ctx, "bob", "b@x.com", "p", "")

	alice, _ := rig.connect(t)
	bob, bobSock := rig.connect(t)
	dispatch(rig.engine, alice, protocol.LoginRequest, loginRequest{Type: "login", UsernameOrEmail: "alice", Password: "p"})
	dispatch(rig.engine, bob, protocol.LoginRequest, loginRequest{Type: "login", UsernameOrEmail: "bob", Password: "p"})

	msg := sendMessageRequest{Type: "send_message", MessageID: "m1", Sender: "alice", Receiver: "bob", Content: "hi", MessageType: "text", Timestamp: 1}
	dispatch(rig.engine, alice, protocol.SendMessage, msg)
	dispatch(rig.engine, alice, protocol.SendMessage, msg)

	if n := len(bobSock.framesOf(protocol.MessageReceived)); n != 1 {
		t.Fatalf("bob received %d copies, want 1", n)
	}
	f := rig.db
	f.mu.Lock()
	count := len(f.messages)
	f.mu.Unlock()
	if count != 1 {
		t.Fatalf("%d rows persisted, want 1", count)
	}
}

func TestHeartbeatBypassesBackpressure(t *testing.T) {
	rig := newRig(t, 2)
	cs, sock := rig.connect(t)

	// Saturate the queue.
	for rig.gate.CanEnqueue() {
		rig.gate.Enqueued()
	}

	// Non-heartbeat is shed with an error frame.
	dispatch(rig.engine, cs, protocol.SendMessage, sendMessageRequest{Type: "send_message", MessageID: "m", Receiver: "x"})
	if got := sock.lastFrame(t).MessageType; got != protocol.ErrorMessage {
		t.Fatalf("shed reply = %v, want error frame", got)
	}
	if rig.metrics.Get(stats.MessagesDropped) != 1 {
		t.Fatal("droppedMessages not counted")
	}

	// Heartbeat still gets its response.
	rig.engine.Dispatch(cs, protocol.NewFrame(protocol.Heartbeat, []byte(`{"type":"heartbeat"}`), true))
	if got := sock.lastFrame(t).MessageType; got != protocol.HeartbeatResponse {
		t.Fatalf("heartbeat reply = %v", got)
	}
}

func TestMessageReadRequiresClientAck(t *testing.T) {
	rig := newRig(t, 100)
	ctx := context.Background()
	rig.db.CreateUser(ctx, "alice", "a@x.com", "p", "")
	rig.db.CreateUser(ctx, "bob", "b@x.com", "p", "")

	alice, _ := rig.connect(t)
	bob, _ := rig.connect(t)
	dispatch(rig.engine, alice, protocol.LoginRequest, loginRequest{Type: "login", UsernameOrEmail: "alice", Password: "p"})
	dispatch(rig.engine, bob, protocol.LoginRequest, loginRequest{Type: "login", UsernameOrEmail: "bob", Password: "p"})

	dispatch(rig.engine, alice, protocol.SendMessage, sendMessageRequest{
		Type: "send_message", MessageID: "m1", Sender: "alice", Receiver: "bob", Content: "x", MessageType: "text",
	})
	if rig.db.status("m1") != model.StatusDelivered {
		t.Fatal("precondition: message should be delivered")
	}

	dispatch(rig.engine, bob, protocol.MessageRead, messageReadAck{Type: "message_read", MessageID: "m1"})
	if rig.db.status("m1") != model.StatusRead {
		t.Fatalf("status = %v after read ack, want read", rig.db.status("m1"))
	}
}

func TestOfflineReceiverLeavesPending(t *testing.T) {
	rig := newRig(t, 100)
	ctx := context.Background()
	rig.db.CreateUser(ctx, "alice", "a@x.com", "p", "")
	rig.db.CreateUser(ctx, "bob", "b@x.com", "p", "")

	alice, aliceSock := rig.connect(t)
	dispatch(rig.engine, alice, protocol.LoginRequest, loginRequest{Type: "login", UsernameOrEmail: "alice", Password: "p"})

	dispatch(rig.engine, alice, protocol.SendMessage, sendMessageRequest{
		Type: "send_message", MessageID: "m1", Sender: "alice", Receiver: "bob", Content: "hi", MessageType: "text",
	})

	var ack messageSentAck
	json.Unmarshal(aliceSock.lastFrame(t).Body, &ack)
	if ack.Status != "pending" {
		t.Fatalf("ack status = %q, want pending", ack.Status)
	}
	if rig.db.status("m1") != model.StatusPending {
		t.Fatal("offline receiver should leave status pending")
	}

	// Bob logs in; the backlog flushes and advances to delivered.
	bob, bobSock := rig.connect(t)
	dispatch(rig.engine, bob, protocol.LoginRequest, loginRequest{Type: "login", UsernameOrEmail: "bob", Password: "p"})

	if n := len(bobSock.framesOf(protocol.MessageReceived)); n != 1 {
		t.Fatalf("backlog flush delivered %d frames, want 1", n)
	}
	if rig.db.status("m1") != model.StatusDelivered {
		t.Fatalf("status = %v after flush, want delivered", rig.db.status("m1"))
	}
}
