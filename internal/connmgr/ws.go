package connmgr

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/webitel/im-chat-core/internal/domain/model"
	"github.com/webitel/im-chat-core/internal/protocol"
	"github.com/webitel/im-chat-core/internal/robustness"
	"github.com/webitel/im-chat-core/internal/stats"
)

// maxWSMessage bounds one websocket message to a full frame.
const maxWSMessage = protocol.HeaderSize + protocol.MaxBodySize

// WSEndpoint accepts websocket connections carrying the exact same 7-byte
// framed protocol as the TCP listener: each binary websocket message is
// appended to the client's read buffer and sliced into frames, so one
// message engine serves both transports.
type WSEndpoint struct {
	listener *Listener
	upgrader websocket.Upgrader
}

func NewWSEndpoint(l *Listener) *WSEndpoint {
	return &WSEndpoint{
		listener: l,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Security: adjust for production
		},
	}
}

func (e *WSEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := e.listener

	if l.degradation != nil && l.degradation.Level() == robustness.DegradationEmergency {
		http.Error(w, "server overloaded", http.StatusServiceUnavailable)
		return
	}
	if l.registry.Count() >= int64(l.cfg.MaxConnections) {
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}

	ws, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Error("WS_UPGRADE_FAILED", "err", err)
		return
	}

	sock := newWSSocket(ws)
	c := &client{id: uuid.New(), cs: model.NewClientState(sock), sock: sock}
	if err := l.registry.Insert(c.id, c.cs); err != nil {
		_ = ws.Close()
		return
	}
	l.clients.Store(c.id, c)
	l.metrics.Inc(stats.ConnectionsAccepted)

	defer l.disconnect(c, "ws closed")

	for {
		ws.SetReadLimit(int64(maxWSMessage))
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		c.cs.AppendToBuffer(data)
		if derr := l.drainFrames(c.cs); derr != nil {
			l.metrics.Inc(stats.ProtocolErrors)
			l.logger.Warn("PROTOCOL_ERROR", "remote", c.sock.RemoteAddr(), "err", derr)
			return
		}
	}
}
