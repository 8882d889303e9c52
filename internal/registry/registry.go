// Package registry implements the lock-free client registry: a
// dual-indexed concurrent map (socket -> ClientState, userID ->
// ClientState) with snapshot-safe iteration. It shares the sync.Map-based
// lookup shape of internal/domain/registry.Hub, which stays focused on
// per-user delivery mailboxes while this index serves frame transport.
package registry

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/webitel/im-chat-core/internal/domain/model"
)

// ErrAlreadyPresent is returned by Insert when the key is already registered.
var ErrAlreadyPresent = errors.New("registry: key already present")

// entry wraps a ClientState with a tombstone flag so that snapshot holders
// in flight keep seeing a consistent view: Range-based iteration filters
// tombstoned entries, and the underlying value is only garbage once no
// snapshot referencing it is outstanding (Go's GC already provides the
// hazard-pointer-style guarantee once the slice/map reference is dropped).
type entry struct {
	state   *model.ClientState
	deleted atomic.Bool
}

// Registry implements the dual-indexed lock-free Client Registry.
type Registry struct {
	bySocket sync.Map // uuid.UUID (socket/connection id) -> *entry
	byUser   sync.Map // uint64 (user id)                  -> *entry

	count atomic.Int64
}

func New() *Registry {
	return &Registry{}
}

// Insert performs an idempotent-by-rejection registration: duplicate socket
// IDs are rejected. Callers that successfully authenticate later call
// BindUser to add the user-id index entry.
func (r *Registry) Insert(socketID uuid.UUID, cs *model.ClientState) error {
	e := &entry{state: cs}
	if _, loaded := r.bySocket.LoadOrStore(socketID, e); loaded {
		return ErrAlreadyPresent
	}
	r.count.Add(1)
	return nil
}

// BindUser publishes the userID -> ClientState index once a connection
// authenticates.
func (r *Registry) BindUser(userID uint64, cs *model.ClientState) error {
	e := &entry{state: cs}
	if _, loaded := r.byUser.LoadOrStore(userID, e); loaded {
		// A user reconnecting on a new socket supersedes the stale entry;
		// this is not a protocol violation, just a replace.
		r.byUser.Store(userID, e)
	}
	return nil
}

// RemoveSocket removes the socket-indexed entry. Returns false if absent.
func (r *Registry) RemoveSocket(socketID uuid.UUID) bool {
	v, ok := r.bySocket.LoadAndDelete(socketID)
	if !ok {
		return false
	}
	v.(*entry).deleted.Store(true)
	r.count.Add(-1)
	return true
}

// RemoveUser removes the userID-indexed entry, independent of the socket
// index.
func (r *Registry) RemoveUser(userID uint64) bool {
	v, ok := r.byUser.LoadAndDelete(userID)
	if !ok {
		return false
	}
	v.(*entry).deleted.Store(true)
	return true
}

func (r *Registry) GetBySocket(socketID uuid.UUID) (*model.ClientState, bool) {
	v, ok := r.bySocket.Load(socketID)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if e.deleted.Load() {
		return nil, false
	}
	return e.state, true
}

func (r *Registry) GetByUser(userID uint64) (*model.ClientState, bool) {
	v, ok := r.byUser.Load(userID)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if e.deleted.Load() {
		return nil, false
	}
	return e.state, true
}

// Snapshot returns a consistent view of every non-deleted client present at
// call time: entries inserted afterward are not guaranteed to appear,
// entries marked-deleted before this call never appear.
func (r *Registry) Snapshot() []*model.ClientState {
	out := make([]*model.ClientState, 0, r.count.Load())
	r.bySocket.Range(func(_, v any) bool {
		e := v.(*entry)
		if !e.deleted.Load() {
			out = append(out, e.state)
		}
		return true
	})
	return out
}

// ForEach applies fn to a consistent snapshot without holding any lock
// across the callback (the sync.Map-backed index has no global lock to
// hold in the first place).
func (r *Registry) ForEach(fn func(*model.ClientState)) {
	for _, cs := range r.Snapshot() {
		fn(cs)
	}
}

func (r *Registry) Count() int64 { return r.count.Load() }
