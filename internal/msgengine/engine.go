// Package msgengine implements the message engine: a dispatch table keyed
// by messageType, per-message backpressure admission, and the handler set
// for the auth/chat/presence/system families. Handlers return errors; the
// engine converts them to in-band ERROR frames, mirroring the ack-or-nack
// discipline of the AMQP bridge (internal/handler/amqp/bind.go).
package msgengine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/webitel/im-chat-core/internal/backpressure"
	"github.com/webitel/im-chat-core/internal/domain/model"
	"github.com/webitel/im-chat-core/internal/email"
	"github.com/webitel/im-chat-core/internal/protocol"
	"github.com/webitel/im-chat-core/internal/registry"
	"github.com/webitel/im-chat-core/internal/robustness"
	"github.com/webitel/im-chat-core/internal/session"
	"github.com/webitel/im-chat-core/internal/stats"
	"github.com/webitel/im-chat-core/internal/store"
	"github.com/webitel/im-chat-core/internal/threadpool"
)

// Store is the persistence surface the engine schedules through the
// Database pool. *store.DB satisfies it; tests substitute a fake.
type Store interface {
	VerifyCredentials(ctx context.Context, usernameOrEmail, password string) (*store.User, error)
	CreateUser(ctx context.Context, username, email, password, displayName string) (*store.User, error)
	GetUserByName(ctx context.Context, username string) (*store.User, error)
	SaveMessage(ctx context.Context, msg store.ChatMessage) (bool, error)
	UpdateMessageStatus(ctx context.Context, messageID string, status model.DeliveryStatus) error
	PendingFor(ctx context.Context, receiver string, limit int) ([]store.ChatMessage, error)
}

// Handler processes one parsed frame for one client. A returned error is
// converted into an ERROR frame by the engine.
type Handler func(ctx context.Context, cs *model.ClientState, body []byte) error

// Engine routes frames to handlers with admission control.
type Engine struct {
	registry *registry.Registry
	sessions *session.Manager
	db       Store
	pool     *threadpool.Manager
	breakers *robustness.BreakerSet
	gate     *backpressure.Controller
	metrics  *stats.Collector
	logger   *slog.Logger

	handlers map[protocol.MessageType]Handler

	mailer email.Sender

	dbTimeout time.Duration
}

func New(
	reg *registry.Registry,
	sessions *session.Manager,
	db Store,
	pool *threadpool.Manager,
	breakers *robustness.BreakerSet,
	gate *backpressure.Controller,
	metrics *stats.Collector,
	logger *slog.Logger,
) *Engine {
	e := &Engine{
		registry:  reg,
		sessions:  sessions,
		db:        db,
		pool:      pool,
		breakers:  breakers,
		gate:      gate,
		metrics:   metrics,
		logger:    logger,
		mailer:    email.Noop{},
		dbTimeout: 30 * time.Second,
	}
	e.handlers = map[protocol.MessageType]Handler{
		protocol.LoginRequest:    e.handleLogin,
		protocol.LogoutRequest:   e.handleLogout,
		protocol.RegisterRequest: e.handleRegister,
		protocol.SendMessage:     e.handleSendMessage,
		protocol.MessageRead:     e.handleMessageRead,
		protocol.UserListRequest: e.handleUserList,
		protocol.GroupSend:       e.handleGroupSend,
	}
	return e
}

// SetMailer swaps the outbound-mail collaborator (default: discard).
func (e *Engine) SetMailer(m email.Sender) {
	if m != nil {
		e.mailer = m
	}
}

// Dispatch processes one frame from cs. Per-socket ordering holds because
// each connection has a single reader calling Dispatch sequentially;
// parallelism exists across sockets, not within one.
func (e *Engine) Dispatch(cs *model.ClientState, frame protocol.Frame) {
	cs.Touch()

	// Heartbeats are processed immediately on the calling goroutine (the
	// connection's reader, not a Network pool worker) and never traverse
	// the admission gate.
	if frame.Heartbeat || frame.MessageType == protocol.Heartbeat {
		e.metrics.Inc(stats.HeartbeatsReceived)
		e.reply(cs, protocol.HeartbeatResponse, heartbeatResponse{Type: "heartbeat_response", TS: time.Now().UnixMilli()}, true)
		return
	}

	e.metrics.Inc(stats.FramesReceived)

	// Enqueued re-checks capacity under CAS, so a race between CanEnqueue
	// and here still rejects rather than overfilling. Both paths count the
	// drop on the gate exactly once.
	admitted := e.gate.CanEnqueue()
	if admitted {
		admitted = e.gate.Enqueued() // counts its own drop on the race
	} else {
		e.gate.Dropped()
	}
	if !admitted {
		e.metrics.Inc(stats.MessagesDropped)
		// The drop is deterministic (queue full, not random shed), so the
		// client gets an in-band error frame.
		e.sendError(cs, "resource_exhausted", "server overloaded, retry later")
		return
	}
	defer e.gate.Drained()

	handler, ok := e.handlers[frame.MessageType]
	if !ok {
		e.metrics.Inc(stats.ProtocolErrors)
		e.sendError(cs, "unknown_type", "unsupported message type")
		return
	}

	e.metrics.Inc(stats.MessagesDispatched)
	ctx, cancel := context.WithTimeout(context.Background(), e.dbTimeout)
	defer cancel()

	if err := handler(ctx, cs, frame.Body); err != nil {
		e.logger.Warn("HANDLER_FAILED", "type", frame.MessageType.String(), "err", err)
		e.sendError(cs, "handler_error", err.Error())
	}
}

// runOnDBPool executes fn on the Database pool under the database circuit
// breaker and blocks for the result, honoring ctx for the caller's wait.
func (e *Engine) runOnDBPool(ctx context.Context, fn func(ctx context.Context) error) error {
	if e.pool == nil {
		return e.breakers.Database.Do(func() error { return fn(ctx) })
	}

	errCh := make(chan error, 1)
	handle := e.pool.Submit(threadpool.Database, func(taskCtx context.Context) {
		errCh <- e.breakers.Database.Do(func() error { return fn(ctx) })
	}, threadpool.High)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		handle.Cancel()
		return ctx.Err()
	}
}

// reply marshals body into a frame and writes it to cs's socket.
func (e *Engine) reply(cs *model.ClientState, t protocol.MessageType, body any, heartbeat bool) {
	buf, err := json.Marshal(body)
	if err != nil {
		e.logger.Error("REPLY_ENCODE_FAILED", "type", t.String(), "err", err)
		return
	}
	wire, err := protocol.Encode(protocol.NewFrame(t, buf, heartbeat))
	if err != nil {
		e.logger.Error("REPLY_FRAME_FAILED", "type", t.String(), "err", err)
		return
	}
	if _, err := cs.Socket.Write(wire); err != nil {
		e.logger.Warn("REPLY_WRITE_FAILED", "type", t.String(), "err", err)
		return
	}
	e.metrics.Inc(stats.FramesSent)
}

func (e *Engine) sendError(cs *model.ClientState, code, msg string) {
	e.reply(cs, protocol.ErrorMessage, errorBody{Type: "error", Code: code, Message: msg}, false)
}

// forwardToUser writes a frame to userID's current socket if online.
// Returns false when the user has no registered connection.
func (e *Engine) forwardToUser(userID uint64, t protocol.MessageType, body any) bool {
	target, ok := e.registry.GetByUser(userID)
	if !ok {
		return false
	}
	e.reply(target, t, body, false)
	return true
}

// broadcastPresence fans a USER_ONLINE/USER_OFFLINE notice to every
// connected, authenticated client except the subject.
func (e *Engine) broadcastPresence(t protocol.MessageType, userID uint64) {
	notice := presenceNotice{Type: t.String(), UserID: userID}
	e.registry.ForEach(func(peer *model.ClientState) {
		if !peer.Authenticated() || peer.UserID() == userID {
			return
		}
		e.reply(peer, t, notice, false)
	})
}

// Disconnect tears down a client's presence: the session keeps its token
// (logout is explicit; a connection drop is not a logout), but the user
// leaves the registry and peers learn they went offline.
func (e *Engine) Disconnect(cs *model.ClientState) {
	if cs.Authenticated() {
		e.registry.RemoveUser(cs.UserID())
		e.broadcastPresence(protocol.UserOffline, cs.UserID())
	}
	e.metrics.Inc(stats.ConnectionsClosed)
}
