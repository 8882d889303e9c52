// Package store provides the on-node persistence layer: the peer directory
// the enrichment path resolves contacts against, user accounts, chat
// message rows with their delivery status, and the message log.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection pool backing the directory tables.
type DB struct {
	conn *sql.DB
}

// Open creates (if missing) and opens the SQLite database at path, using
// WAL mode for concurrent readers alongside the periodic writer goroutines.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return db, nil
}

func (d *DB) initSchema() error {
	const schema = `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS directory (
		peer_id TEXT NOT NULL,
		domain_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		issuer TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (peer_id, domain_id)
	);
	CREATE TABLE IF NOT EXISTS message_log (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		domain_id INTEGER NOT NULL,
		from_peer TEXT NOT NULL,
		to_peer TEXT NOT NULL,
		body TEXT NOT NULL,
		status INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_message_log_thread ON message_log(thread_id, created_at);
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS chat_messages (
		message_id TEXT PRIMARY KEY,
		sender TEXT NOT NULL,
		receiver TEXT NOT NULL,
		content TEXT NOT NULL,
		message_type TEXT NOT NULL,
		status INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_receiver ON chat_messages(receiver, status);
	`
	if _, err := d.conn.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

func (d *DB) Close() error {
	return d.conn.Close()
}

// UpsertDirectoryEntry records (or refreshes) the directory identity for a
// peer within a domain; Resolve reads these rows for the enrichment path.
func (d *DB) UpsertDirectoryEntry(ctx context.Context, id uuid.UUID, domainID int32, name, subject, issuer string) error {
	const query = `
	INSERT INTO directory (peer_id, domain_id, name, subject, issuer, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(peer_id, domain_id) DO UPDATE SET
		name = excluded.name,
		subject = excluded.subject,
		issuer = excluded.issuer,
		updated_at = excluded.updated_at`

	_, err := d.conn.ExecContext(ctx, query, id.String(), domainID, name, subject, issuer, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert directory entry: %w", err)
	}
	return nil
}

// Resolve implements service.ContactResolver against the directory table.
func (d *DB) Resolve(ctx context.Context, id uuid.UUID, domainID int32) (name, subject, issuer string, ok bool) {
	const query = `SELECT name, subject, issuer FROM directory WHERE peer_id = ? AND domain_id = ?`

	row := d.conn.QueryRowContext(ctx, query, id.String(), domainID)
	if err := row.Scan(&name, &subject, &issuer); err != nil {
		return "", "", "", false
	}
	return name, subject, issuer, true
}

// AppendMessageLog persists a delivered message for history/audit queries.
func (d *DB) AppendMessageLog(ctx context.Context, id, threadID uuid.UUID, domainID int32, fromPeer, toPeer, body string, status int8, createdAt int64) error {
	const query = `
	INSERT INTO message_log (id, thread_id, domain_id, from_peer, to_peer, body, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`

	_, err := d.conn.ExecContext(ctx, query, id.String(), threadID.String(), domainID, fromPeer, toPeer, body, status, createdAt, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("append message log: %w", err)
	}
	return nil
}
