package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	wsmarshaller "github.com/webitel/im-chat-core/internal/handler/marshaller/ws"
	"github.com/webitel/im-chat-core/internal/service"
	"github.com/webitel/im-chat-core/internal/session"
)

type WSHandler struct {
	logger    *slog.Logger
	deliverer service.Deliverer
	sessions  *session.Manager
	upgrader  websocket.Upgrader
}

func NewWSHandler(logger *slog.Logger, deliverer service.Deliverer, sessions *session.Manager) *WSHandler {
	return &WSHandler{
		logger:    logger,
		deliverer: deliverer,
		sessions:  sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Security: adjust for production
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. EXTRACT IDENTITY from the session token issued at LOGIN
	token := r.URL.Query().Get("token")
	sess, err := h.sessions.Validate(token)
	if err != nil {
		http.Error(w, "invalid or expired session", http.StatusUnauthorized)
		return
	}
	userID := sess.UserID

	// 2. UPGRADE TO WEBSOCKET
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	// 3. SUBSCRIBE VIA THE SAME SERVICE
	conn, err := h.deliverer.Subscribe(r.Context(), userID)
	if err != nil {
		return
	}
	defer h.deliverer.Unsubscribe(userID, conn.GetID())

	h.logger.Info("ws opened", "user_id", userID, "conn_id", conn.GetID())

	// 4. MAIN WS PUMP LOOP
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-conn.Recv():
			if !ok {
				return
			}

			data, err := wsmarshaller.MarshallDeliveryEvent(ev)
			if err != nil {
				h.logger.Error("failed to marshal ws event", "error", err)
				continue
			}

			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("ws send failed", "error", err)
				return
			}
		}
	}
}
