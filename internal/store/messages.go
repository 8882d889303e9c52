package store

import (
	"context"
	"fmt"
	"time"

	"github.com/webitel/im-chat-core/internal/domain/model"
)

// ChatMessage is the persisted row for one client-submitted message,
// keyed by the caller-supplied message_id so retries are idempotent.
type ChatMessage struct {
	MessageID string
	Sender    string
	Receiver  string
	Content   string
	Type      string
	Status    model.DeliveryStatus
	CreatedAt int64
}

// SaveMessage persists msg, rejecting duplicates by primary key: the
// second save of the same message_id inserts nothing and returns
// inserted=false with no error, so the engine can still ack the sender.
func (d *DB) SaveMessage(ctx context.Context, msg ChatMessage) (inserted bool, err error) {
	now := time.Now().Unix()
	res, err := d.conn.ExecContext(ctx,
		`INSERT INTO chat_messages (message_id, sender, receiver, content, message_type, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(message_id) DO NOTHING`,
		msg.MessageID, msg.Sender, msg.Receiver, msg.Content, msg.Type, int(msg.Status), msg.CreatedAt, now)
	if err != nil {
		return false, fmt.Errorf("save message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateMessageStatus advances a message along pending -> delivered ->
// read. The state machine is explicit and monotonic: a stale update (e.g.
// delivered after read) is a no-op, never a regression.
func (d *DB) UpdateMessageStatus(ctx context.Context, messageID string, status model.DeliveryStatus) error {
	_, err := d.conn.ExecContext(ctx,
		`UPDATE chat_messages SET status = ?, updated_at = ? WHERE message_id = ? AND status < ?`,
		int(status), time.Now().Unix(), messageID, int(status))
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	return nil
}

// PendingFor lists undelivered messages for a receiver, oldest first, used
// to flush the backlog when a user comes online.
func (d *DB) PendingFor(ctx context.Context, receiver string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.conn.QueryContext(ctx,
		`SELECT message_id, sender, receiver, content, message_type, status, created_at
		 FROM chat_messages WHERE receiver = ? AND status = ? ORDER BY created_at ASC LIMIT ?`,
		receiver, int(model.StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var status int
		if err := rows.Scan(&m.MessageID, &m.Sender, &m.Receiver, &m.Content, &m.Type, &status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		m.Status = model.DeliveryStatus(status)
		out = append(out, m)
	}
	return out, rows.Err()
}

// MessageStatus reads the current delivery status for one message.
func (d *DB) MessageStatus(ctx context.Context, messageID string) (model.DeliveryStatus, error) {
	var status int
	err := d.conn.QueryRowContext(ctx,
		`SELECT status FROM chat_messages WHERE message_id = ?`, messageID).Scan(&status)
	if err != nil {
		return 0, fmt.Errorf("query message status: %w", err)
	}
	return model.DeliveryStatus(status), nil
}
