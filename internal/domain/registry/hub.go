package registry

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-chat-core/internal/domain/event"
	"github.com/webitel/im-chat-core/internal/domain/model"
)

// Hubber defines the external API for the registry system.
type Hubber interface {
	Broadcast(ev event.Eventer) bool
	Register(conn Connector)
	Unregister(userID uint64, connID uuid.UUID)
	IsConnected(userID uint64) bool
	Stats() model.HubStats
	Shutdown()
}

// Hub implements [Hubber] using a Virtual Cell (Actor) architecture.
type Hub struct {
	// cells maintains an active registry of UserID -> Celler.
	cells sync.Map

	// [EVICTION_POLICY]
	evictionInterval time.Duration
	idleTimeout      time.Duration
	mailboxSize      int
	startedAt        time.Time
	stopCh           chan struct{}
}

// NewHub initializes the registry with functional options and starts the janitor process.
func NewHub(opts ...Option) *Hub {
	// [DEFAULTS] Production-ready fallback values
	h := &Hub{
		evictionInterval: 1 * time.Minute,
		idleTimeout:      5 * time.Minute,
		mailboxSize:      1024,
		startedAt:        time.Now(),
		stopCh:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	go h.runEvictor()
	return h
}

// IsConnected checks if a user cell exists in the registry.
func (h *Hub) IsConnected(userID uint64) bool {
	_, ok := h.cells.Load(userID)
	return ok
}

// Broadcast dispatches an event to the specific user's cell mailbox.
func (h *Hub) Broadcast(ev event.Eventer) bool {
	if val, ok := h.cells.Load(ev.GetUserID()); ok {
		if cell, ok := val.(Celler); ok {
			return cell.Push(ev)
		}
	}
	return false
}

// Register performs an [IDEMPOTENT] registration of a new connection.
func (h *Hub) Register(conn Connector) {
	uID := conn.GetUserID()
	// Pass h.mailboxSize to ensure the Actor has the configured capacity
	val, _ := h.cells.LoadOrStore(uID, NewCell(uID, h.mailboxSize))

	if cell, ok := val.(Celler); ok {
		cell.Attach(conn)
	}
}

// Unregister removes a connection from a cell.
// Reclamation of the cell itself is handled asynchronously by the Evictor.
func (h *Hub) Unregister(userID uint64, connID uuid.UUID) {
	if val, ok := h.cells.Load(userID); ok {
		if cell, ok := val.(Celler); ok {
			cell.Detach(connID)
		}
	}
}

func (h *Hub) runEvictor() {
	ticker := time.NewTicker(h.evictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.performEviction()
		}
	}
}

// performEviction executes the [RESOURCE_RECLAMATION] cycle.
func (h *Hub) performEviction() {
	reapedCount := 0
	h.cells.Range(func(key, value any) bool {
		if cell, ok := value.(Celler); ok {
			if cell.IsIdle(h.idleTimeout) {
				cell.Stop()
				h.cells.Delete(key)
				reapedCount++
			}
		}
		return true
	})

	if reapedCount > 0 {
		log.Printf("[Hub] Eviction complete. Reclaimed %d idle user cells.", reapedCount)
	}
}

// Stats reports the delivery-side view for the debug surface: active user
// cells and the total attached transport sessions.
func (h *Hub) Stats() model.HubStats {
	var s model.HubStats
	h.cells.Range(func(_, value any) bool {
		s.TotalUsers++
		if cell, ok := value.(*Cell); ok {
			cell.mu.RLock()
			s.TotalConnections += len(cell.sessions)
			cell.mu.RUnlock()
		}
		return true
	})
	s.Uptime = time.Since(h.startedAt)
	return s
}

// Shutdown gracefully stops the hub and all managed cells.
func (h *Hub) Shutdown() {
	close(h.stopCh)
	h.cells.Range(func(key, value any) bool {
		if cell, ok := value.(Celler); ok {
			cell.Stop()
		}
		return true
	})
}
