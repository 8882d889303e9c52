package connmgr

import (
	"net"
	"sync"

	"github.com/gorilla/websocket"
)

// tcpSocket adapts a net.Conn (plain or TLS) to model.SocketHandle.
// Writes are serialized so concurrent repliers never interleave frames.
type tcpSocket struct {
	conn net.Conn
	mu   sync.Mutex
}

func newTCPSocket(conn net.Conn) *tcpSocket { return &tcpSocket{conn: conn} }

func (s *tcpSocket) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(p)
}

func (s *tcpSocket) Close() error       { return s.conn.Close() }
func (s *tcpSocket) RemoteAddr() string { return s.conn.RemoteAddr().String() }

// wsSocket adapts a gorilla websocket connection to the same
// model.SocketHandle, so the frame codec and Message Engine drive raw TLS
// and websocket transports identically.
type wsSocket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSSocket(conn *websocket.Conn) *wsSocket { return &wsSocket{conn: conn} }

func (s *wsSocket) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsSocket) Close() error       { return s.conn.Close() }
func (s *wsSocket) RemoteAddr() string { return s.conn.RemoteAddr().String() }
