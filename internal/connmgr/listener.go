// Package connmgr owns the client-facing connections: a TLS accept loop
// on the Network pool, per-connection framed reads feeding the message
// engine, and the idle sweeper that reclaims dead clients. Each
// connection follows the same register / serve / deferred-unregister
// lifecycle as the hub's ws delivery handler.
package connmgr

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webitel/im-chat-core/config"
	"github.com/webitel/im-chat-core/internal/domain/model"
	"github.com/webitel/im-chat-core/internal/msgengine"
	"github.com/webitel/im-chat-core/internal/protocol"
	"github.com/webitel/im-chat-core/internal/registry"
	"github.com/webitel/im-chat-core/internal/robustness"
	"github.com/webitel/im-chat-core/internal/stats"
	"github.com/webitel/im-chat-core/internal/threadpool"
)

// CleanupInterval is the idle-sweep cadence.
const CleanupInterval = 5 * time.Minute

// client pairs the registry entry with its transport for sweep/teardown.
type client struct {
	id   uuid.UUID
	cs   *model.ClientState
	sock model.SocketHandle
}

// Listener owns the client-facing TCP/TLS endpoint.
type Listener struct {
	cfg config.ServerConfig

	engine      *msgengine.Engine
	registry    *registry.Registry
	pool        *threadpool.Manager
	starvation  *robustness.StarvationDetector
	degradation *robustness.DegradationManager
	metrics     *stats.Collector
	logger      *slog.Logger

	// dispatch indirects engine.Dispatch so the frame-drain path is
	// testable without a full engine rig.
	dispatch func(*model.ClientState, protocol.Frame)

	tlsConfig *tls.Config
	ln        net.Listener

	clients sync.Map // uuid.UUID -> *client

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewListener(
	cfg *config.Config,
	engine *msgengine.Engine,
	reg *registry.Registry,
	pool *threadpool.Manager,
	starvation *robustness.StarvationDetector,
	degradation *robustness.DegradationManager,
	metrics *stats.Collector,
	logger *slog.Logger,
) (*Listener, error) {
	l := &Listener{
		cfg:         cfg.Server,
		engine:      engine,
		registry:    reg,
		pool:        pool,
		starvation:  starvation,
		degradation: degradation,
		metrics:     metrics,
		logger:      logger,
		dispatch:    engine.Dispatch,
		stopCh:      make(chan struct{}),
	}

	// The certificate is loaded exactly once, at startup.
	// A missing certificate with SSL enabled is Fatal.
	if cfg.Security.SSLEnabled {
		cert, err := tls.LoadX509KeyPair(cfg.Security.CertFile, cfg.Security.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("connmgr: load server certificate: %w", err)
		}
		l.tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			// No peer verification, compatible with self-signed dev
			// certs. ClientAuth is fixed here; no config key changes it.
			ClientAuth: tls.NoClientCert,
			MinVersion: tls.VersionTLS12,
		}
	}

	return l, nil
}

// Start binds the listener and runs the accept loop on the Network pool.
func (l *Listener) Start() error {
	addr := fmt.Sprintf("%s:%d", l.cfg.Host, l.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("connmgr: bind %s: %w", addr, err)
	}
	if l.tlsConfig != nil {
		ln = tls.NewListener(ln, l.tlsConfig)
	}
	l.ln = ln
	l.logger.Info("LISTENER_STARTED", "addr", addr, "tls", l.tlsConfig != nil)

	if l.starvation != nil {
		l.starvation.Register("connmgr.accept")
	}

	// The accept loop is a long-running Network pool task.
	l.pool.Submit(threadpool.Network, l.acceptLoop, threadpool.High)

	l.wg.Add(1)
	go l.sweepLoop()
	return nil
}

func (l *Listener) acceptLoop(ctx context.Context) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.stopCh:
				return
			case <-ctx.Done():
				return
			default:
			}
			l.logger.Warn("ACCEPT_FAILED", "err", err)
			continue
		}
		if l.starvation != nil {
			l.starvation.Heartbeat("connmgr.accept")
		}
		l.accept(conn)
	}
}

// sweepLoop removes clients idle past HeartbeatTimeout every
// CleanupInterval.
func (l *Listener) sweepLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.sweepIdle()
		}
	}
}

func (l *Listener) sweepIdle() {
	reaped := 0
	l.clients.Range(func(_, v any) bool {
		c := v.(*client)
		if c.cs.IdleFor() > model.HeartbeatTimeout {
			l.disconnect(c, "idle timeout")
			reaped++
		}
		return true
	})
	if reaped > 0 {
		l.logger.Info("IDLE_CLIENTS_REAPED", "count", reaped)
	}
}

// accept admits one connection, enforcing the connection cap and the
// Emergency degradation gate.
func (l *Listener) accept(conn net.Conn) {
	if l.degradation != nil && l.degradation.Level() == robustness.DegradationEmergency {
		l.logger.Warn("CONNECTION_REJECTED", "reason", "emergency degradation", "remote", conn.RemoteAddr().String())
		_ = conn.Close()
		return
	}
	if l.registry.Count() >= int64(l.cfg.MaxConnections) {
		l.logger.Warn("CONNECTION_REJECTED", "reason", "max connections", "remote", conn.RemoteAddr().String())
		_ = conn.Close()
		return
	}

	sock := newTCPSocket(conn)
	c := &client{id: uuid.New(), cs: model.NewClientState(sock), sock: sock}

	if err := l.registry.Insert(c.id, c.cs); err != nil {
		_ = conn.Close()
		return
	}
	l.clients.Store(c.id, c)
	l.metrics.Inc(stats.ConnectionsAccepted)

	l.wg.Add(1)
	go l.serve(c, conn)
}

// serve is the single reader for one socket:
// it appends bytes to the client's buffer and dispatches complete frames
// in arrival order.
func (l *Listener) serve(c *client, conn net.Conn) {
	defer l.wg.Done()
	defer l.disconnect(c, "read loop exit")

	buf := make([]byte, 32*1024)
	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		// The read deadline doubles as the socket-idle timeout.
		_ = conn.SetReadDeadline(time.Now().Add(model.HeartbeatTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			c.cs.AppendToBuffer(buf[:n])
			if derr := l.drainFrames(c.cs); derr != nil {
				l.metrics.Inc(stats.ProtocolErrors)
				l.logger.Warn("PROTOCOL_ERROR", "remote", c.sock.RemoteAddr(), "err", derr)
				return
			}
		}
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				if c.cs.IdleFor() > model.HeartbeatTimeout {
					return
				}
				continue
			}
			return
		}
	}
}

// drainFrames slices complete frames off the client's buffer and hands
// them to the message engine, in order. A malformed header cannot be
// recovered in-band, so the caller disconnects.
func (l *Listener) drainFrames(cs *model.ClientState) error {
	var drainErr error
	cs.DrainBuffer(func(buf []byte) int {
		frame, consumed, ok, err := protocol.TryExtractFrame(buf)
		if err != nil {
			drainErr = err
			return 0
		}
		if !ok {
			return 0
		}
		l.dispatch(cs, frame)
		return consumed
	})
	return drainErr
}

func (l *Listener) disconnect(c *client, reason string) {
	if _, loaded := l.clients.LoadAndDelete(c.id); !loaded {
		return // already torn down
	}
	l.registry.RemoveSocket(c.id)
	l.engine.Disconnect(c.cs)
	_ = c.sock.Close()
	l.logger.Debug("CLIENT_DISCONNECTED", "remote", c.sock.RemoteAddr(), "reason", reason)
}

// Shutdown closes the listener and every client connection.
func (l *Listener) Shutdown() {
	close(l.stopCh)
	if l.ln != nil {
		_ = l.ln.Close()
	}
	l.clients.Range(func(_, v any) bool {
		l.disconnect(v.(*client), "server shutdown")
		return true
	})
	l.wg.Wait()
}
