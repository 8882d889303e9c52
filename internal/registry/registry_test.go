package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/webitel/im-chat-core/internal/domain/model"
)

type stubSocket struct{}

func (stubSocket) Write(p []byte) (int, error) { return len(p), nil }
func (stubSocket) Close() error                { return nil }
func (stubSocket) RemoteAddr() string          { return "stub" }

func newState() *model.ClientState { return model.NewClientState(stubSocket{}) }

func TestDuplicateInsertRejected(t *testing.T) {
	r := New()
	id := uuid.New()

	if err := r.Insert(id, newState()); err != nil {
		t.Fatal(err)
	}
	if err := r.Insert(id, newState()); !errors.Is(err, ErrAlreadyPresent) {
		t.Fatalf("duplicate insert: %v, want ErrAlreadyPresent", err)
	}
	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1", r.Count())
	}
}

func TestDualIndexLookup(t *testing.T) {
	r := New()
	id := uuid.New()
	cs := newState()

	if err := r.Insert(id, cs); err != nil {
		t.Fatal(err)
	}
	if err := r.BindUser(42, cs); err != nil {
		t.Fatal(err)
	}

	bySock, ok := r.GetBySocket(id)
	if !ok || bySock != cs {
		t.Fatal("socket index lookup failed")
	}
	byUser, ok := r.GetByUser(42)
	if !ok || byUser != cs {
		t.Fatal("user index lookup failed")
	}

	if !r.RemoveUser(42) {
		t.Fatal("RemoveUser returned false")
	}
	if _, ok := r.GetByUser(42); ok {
		t.Fatal("removed user still resolvable")
	}
	// The socket index is independent of the user index.
	if _, ok := r.GetBySocket(id); !ok {
		t.Fatal("socket entry vanished with user removal")
	}
}

func TestReconnectSupersedesUserEntry(t *testing.T) {
	r := New()
	first := newState()
	second := newState()

	r.BindUser(7, first)
	r.BindUser(7, second)

	got, ok := r.GetByUser(7)
	if !ok || got != second {
		t.Fatal("reconnect did not supersede the stale user entry")
	}
}

func TestSnapshotExcludesDeleted(t *testing.T) {
	r := New()
	keep := uuid.New()
	drop := uuid.New()
	r.Insert(keep, newState())
	r.Insert(drop, newState())

	r.RemoveSocket(drop)

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot size = %d, want 1", len(snap))
	}

	seen := 0
	r.ForEach(func(*model.ClientState) { seen++ })
	if seen != 1 {
		t.Fatalf("ForEach visited %d, want 1", seen)
	}
}

func TestConcurrentInsertRemove(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				id := uuid.New()
				if err := r.Insert(id, newState()); err != nil {
					t.Error(err)
					return
				}
				r.Snapshot()
				r.RemoveSocket(id)
			}
		}()
	}
	wg.Wait()

	if r.Count() != 0 {
		t.Fatalf("count = %d after balanced insert/remove, want 0", r.Count())
	}
}
