package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestResolveMissingReturnsNotOK(t *testing.T) {
	db := openTestDB(t)
	_, _, _, ok := db.Resolve(context.Background(), uuid.New(), 1)
	if ok {
		t.Fatal("Resolve should report not-ok for an unknown peer")
	}
}

func TestUpsertThenResolve(t *testing.T) {
	db := openTestDB(t)
	id := uuid.New()

	if err := db.UpsertDirectoryEntry(context.Background(), id, 7, "Alice", "alice@example.com", "auth0"); err != nil {
		t.Fatalf("UpsertDirectoryEntry: %v", err)
	}

	name, subject, issuer, ok := db.Resolve(context.Background(), id, 7)
	if !ok {
		t.Fatal("expected Resolve to find the inserted entry")
	}
	if name != "Alice" || subject != "alice@example.com" || issuer != "auth0" {
		t.Fatalf("unexpected directory row: %q %q %q", name, subject, issuer)
	}
}

func TestUpsertIsIdempotentPerDomain(t *testing.T) {
	db := openTestDB(t)
	id := uuid.New()
	ctx := context.Background()

	if err := db.UpsertDirectoryEntry(ctx, id, 1, "Bob", "", ""); err != nil {
		t.Fatalf("UpsertDirectoryEntry: %v", err)
	}
	if err := db.UpsertDirectoryEntry(ctx, id, 1, "Bob Renamed", "", ""); err != nil {
		t.Fatalf("UpsertDirectoryEntry (update): %v", err)
	}

	name, _, _, ok := db.Resolve(ctx, id, 1)
	if !ok || name != "Bob Renamed" {
		t.Fatalf("expected updated name, got %q ok=%v", name, ok)
	}

	// Different domain_id must not see the same row.
	if _, _, _, ok := db.Resolve(ctx, id, 2); ok {
		t.Fatal("Resolve should be scoped per domain_id")
	}
}

func TestAppendMessageLogUpsertsOnConflict(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	id := uuid.New()
	thread := uuid.New()

	if err := db.AppendMessageLog(ctx, id, thread, 1, "from", "to", "hello", 0, 1000); err != nil {
		t.Fatalf("AppendMessageLog: %v", err)
	}
	if err := db.AppendMessageLog(ctx, id, thread, 1, "from", "to", "hello", 2, 1000); err != nil {
		t.Fatalf("AppendMessageLog (status update): %v", err)
	}
}
