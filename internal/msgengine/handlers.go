package msgengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/webitel/im-chat-core/internal/domain/model"
	"github.com/webitel/im-chat-core/internal/protocol"
	"github.com/webitel/im-chat-core/internal/stats"
	"github.com/webitel/im-chat-core/internal/store"
	"github.com/webitel/im-chat-core/internal/threadpool"
)

// handleLogin verifies credentials on the Database pool, issues a session,
// binds it into ClientState, and announces presence. On failure the reply
// carries the reason and no partial state is retained.
func (e *Engine) handleLogin(ctx context.Context, cs *model.ClientState, body []byte) error {
	var req loginRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("decode login: %w", err)
	}

	var user *store.User
	err := e.runOnDBPool(ctx, func(ctx context.Context) error {
		var verr error
		user, verr = e.db.VerifyCredentials(ctx, req.UsernameOrEmail, req.Password)
		return verr
	})
	if err != nil {
		e.metrics.Inc(stats.AuthFailures)
		reason := "authentication failed"
		if !errors.Is(err, store.ErrBadCredentials) {
			reason = "service unavailable"
		}
		e.reply(cs, protocol.LoginResponse, loginResponse{Type: "login_response", Success: false, Reason: reason}, false)
		return nil
	}

	sess := e.sessions.Issue(user.ID, "", cs.Socket.RemoteAddr())
	cs.BindSession(user.ID, sess.Token)
	_ = e.registry.BindUser(user.ID, cs)

	e.reply(cs, protocol.LoginResponse, loginResponse{
		Type:    "login_response",
		Success: true,
		Token:   sess.Token,
		UserInfo: &userInfo{
			ID:          user.ID,
			Username:    user.Username,
			Email:       user.Email,
			DisplayName: user.DisplayName,
			AvatarURL:   user.AvatarURL,
		},
	}, false)

	e.broadcastPresence(protocol.UserOnline, user.ID)
	e.flushPending(ctx, cs, user.Username)
	return nil
}

// flushPending forwards messages that were persisted while the user was
// offline, advancing each to delivered.
func (e *Engine) flushPending(ctx context.Context, cs *model.ClientState, username string) {
	var backlog []store.ChatMessage
	err := e.runOnDBPool(ctx, func(ctx context.Context) error {
		var qerr error
		backlog, qerr = e.db.PendingFor(ctx, username, 100)
		return qerr
	})
	if err != nil {
		e.logger.Warn("PENDING_FLUSH_FAILED", "user", username, "err", err)
		return
	}

	for _, m := range backlog {
		e.reply(cs, protocol.MessageReceived, messageReceived{
			Type:        "message_received",
			MessageID:   m.MessageID,
			Sender:      m.Sender,
			Content:     m.Content,
			MessageType: m.Type,
			Timestamp:   m.CreatedAt,
		}, false)
		m := m
		_ = e.runOnDBPool(ctx, func(ctx context.Context) error {
			return e.db.UpdateMessageStatus(ctx, m.MessageID, model.StatusDelivered)
		})
	}
}

func (e *Engine) handleLogout(ctx context.Context, cs *model.ClientState, body []byte) error {
	var req logoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("decode logout: %w", err)
	}

	token := req.Token
	if token == "" {
		token = cs.SessionToken()
	}
	ok := e.sessions.Revoke(token)
	if cs.Authenticated() {
		e.registry.RemoveUser(cs.UserID())
		e.broadcastPresence(protocol.UserOffline, cs.UserID())
	}

	e.reply(cs, protocol.LogoutResponse, logoutResponse{Type: "logout_response", Success: ok}, false)
	return nil
}

func (e *Engine) handleRegister(ctx context.Context, cs *model.ClientState, body []byte) error {
	var req registerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("decode register: %w", err)
	}
	if req.Username == "" || req.Password == "" || req.Email == "" {
		e.reply(cs, protocol.RegisterResp, registerResponse{Type: "register_response", Success: false, Reason: "missing required fields"}, false)
		return nil
	}

	var user *store.User
	err := e.runOnDBPool(ctx, func(ctx context.Context) error {
		var cerr error
		user, cerr = e.db.CreateUser(ctx, req.Username, req.Email, req.Password, req.DisplayName)
		return cerr
	})
	if err != nil {
		reason := "registration failed"
		if errors.Is(err, store.ErrUserExists) {
			reason = "username or email already taken"
		}
		e.reply(cs, protocol.RegisterResp, registerResponse{Type: "register_response", Success: false, Reason: reason}, false)
		return nil
	}

	e.reply(cs, protocol.RegisterResp, registerResponse{
		Type: "register_response", Success: true,
		User: &userInfo{ID: user.ID, Username: user.Username, Email: user.Email, DisplayName: user.DisplayName},
	}, false)

	// Welcome mail is best-effort and never blocks the handler; the SMTP
	// client behind the interface is an external collaborator.
	if e.pool != nil {
		addr := user.Email
		name := user.Username
		e.pool.Submit(threadpool.Service, func(ctx context.Context) {
			if err := e.mailer.Send(ctx, addr, "Welcome", "Your account "+name+" is ready."); err != nil {
				e.logger.Warn("WELCOME_MAIL_FAILED", "err", err)
			}
		}, threadpool.Low)
	}
	return nil
}

// handleSendMessage persists with the caller-supplied messageId as the
// primary key, forwards to the receiver when online, and always acks the
// sender. A duplicate message_id persists nothing, delivers nothing new,
// and still acks.
func (e *Engine) handleSendMessage(ctx context.Context, cs *model.ClientState, body []byte) error {
	var req sendMessageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("decode send_message: %w", err)
	}
	if req.MessageID == "" || req.Receiver == "" {
		return errors.New("message_id and receiver are required")
	}
	if req.MessageType == "" {
		req.MessageType = string(model.MessageText)
	}

	var inserted bool
	err := e.runOnDBPool(ctx, func(ctx context.Context) error {
		var serr error
		inserted, serr = e.db.SaveMessage(ctx, store.ChatMessage{
			MessageID: req.MessageID,
			Sender:    req.Sender,
			Receiver:  req.Receiver,
			Content:   req.Content,
			Type:      req.MessageType,
			Status:    model.StatusPending,
			CreatedAt: req.Timestamp,
		})
		return serr
	})
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	status := model.StatusPending
	if inserted {
		e.metrics.Inc(stats.MessagesPersisted)
		if receiver, rerr := e.lookupUser(ctx, req.Receiver); rerr == nil {
			delivered := e.forwardToUser(receiver.ID, protocol.MessageReceived, messageReceived{
				Type:        "message_received",
				MessageID:   req.MessageID,
				Sender:      req.Sender,
				Content:     req.Content,
				MessageType: req.MessageType,
				Timestamp:   req.Timestamp,
			})
			if delivered {
				status = model.StatusDelivered
				_ = e.runOnDBPool(ctx, func(ctx context.Context) error {
					return e.db.UpdateMessageStatus(ctx, req.MessageID, model.StatusDelivered)
				})
			}
		}
	}

	e.reply(cs, protocol.MessageDelivered, messageSentAck{
		Type:      "message_sent",
		MessageID: req.MessageID,
		Status:    status.String(),
	}, false)
	return nil
}

func (e *Engine) lookupUser(ctx context.Context, username string) (*store.User, error) {
	var user *store.User
	err := e.runOnDBPool(ctx, func(ctx context.Context) error {
		var uerr error
		user, uerr = e.db.GetUserByName(ctx, username)
		return uerr
	})
	return user, err
}

// handleMessageRead advances a message to read on the client's explicit
// acknowledgement; the engine never infers read from delivered.
func (e *Engine) handleMessageRead(ctx context.Context, cs *model.ClientState, body []byte) error {
	var req messageReadAck
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("decode message_read: %w", err)
	}
	if req.MessageID == "" {
		return errors.New("message_id is required")
	}
	return e.runOnDBPool(ctx, func(ctx context.Context) error {
		return e.db.UpdateMessageStatus(ctx, req.MessageID, model.StatusRead)
	})
}

// handleUserList answers with the IDs of every authenticated client on
// this node, off the registry snapshot.
func (e *Engine) handleUserList(ctx context.Context, cs *model.ClientState, body []byte) error {
	resp := userListResponse{Type: "user_list_response"}
	e.registry.ForEach(func(peer *model.ClientState) {
		if peer.Authenticated() {
			resp.Users = append(resp.Users, peer.UserID())
		}
	})
	e.reply(cs, protocol.UserListResponse, resp, false)
	return nil
}

// handleGroupSend persists once under the group message id and fans out to
// every named member present in the registry.
func (e *Engine) handleGroupSend(ctx context.Context, cs *model.ClientState, body []byte) error {
	var req groupSendRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("decode group_send: %w", err)
	}
	if req.MessageID == "" || req.GroupID == "" {
		return errors.New("message_id and group_id are required")
	}

	var inserted bool
	err := e.runOnDBPool(ctx, func(ctx context.Context) error {
		var serr error
		inserted, serr = e.db.SaveMessage(ctx, store.ChatMessage{
			MessageID: req.MessageID,
			Sender:    req.Sender,
			Receiver:  "group:" + req.GroupID,
			Content:   req.Content,
			Type:      string(model.MessageText),
			Status:    model.StatusPending,
			CreatedAt: req.Timestamp,
		})
		return serr
	})
	if err != nil {
		return fmt.Errorf("persist group message: %w", err)
	}

	delivered := 0
	if inserted {
		out := messageReceived{
			Type:        "group_message",
			MessageID:   req.MessageID,
			Sender:      req.Sender,
			Content:     req.Content,
			MessageType: string(model.MessageText),
			Timestamp:   req.Timestamp,
		}
		for _, member := range req.Members {
			if member == req.Sender {
				continue
			}
			user, uerr := e.lookupUser(ctx, member)
			if uerr != nil {
				continue
			}
			if e.forwardToUser(user.ID, protocol.GroupMessage, out) {
				delivered++
			}
		}
		if delivered > 0 {
			_ = e.runOnDBPool(ctx, func(ctx context.Context) error {
				return e.db.UpdateMessageStatus(ctx, req.MessageID, model.StatusDelivered)
			})
		}
	}

	status := model.StatusPending
	if delivered > 0 {
		status = model.StatusDelivered
	}
	e.reply(cs, protocol.MessageDelivered, messageSentAck{
		Type:      "message_sent",
		MessageID: req.MessageID,
		Status:    status.String(),
	}, false)
	return nil
}
