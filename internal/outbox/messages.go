package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/frontdesk/internal/record"
)

// Message is one record queued for mirroring.
type Message struct {
	ID          string
	Record      record.Record
	CreatedAt   time.Time
	Attempts    int
	LastError   string
	DeliveredAt *time.Time // nil while pending
}

// Stats counts messages by state.
type Stats struct {
	Pending   int `json:"pending"`
	Delivered int `json:"delivered"`
	Failing   int `json:"failing"` // pending with at least one failed attempt

	OldestPending *time.Time `json:"oldest_pending,omitempty"`
}

// ErrNotFound is returned when no message was queued for a record.
var ErrNotFound = errors.New("outbox message not found")

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Enqueue queues rec for mirroring and returns its message.
// Uses ON CONFLICT(record_id) DO NOTHING for idempotency - enqueueing the same
// record again returns the existing message and inserted=false.
func (o *Outbox) Enqueue(ctx context.Context, rec record.Record) (msg Message, inserted bool, err error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return Message{}, false, fmt.Errorf("enqueue record %d: marshal: %w", rec.ID, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Message{}, false, fmt.Errorf("enqueue record %d: message id: %w", rec.ID, err)
	}

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, false, fmt.Errorf("enqueue record %d: begin tx: %w", rec.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, record_id, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(record_id) DO NOTHING
	`, id.String(), rec.ID, string(payload), toMillis(o.now()))
	if err != nil {
		return Message{}, false, fmt.Errorf("enqueue record %d: insert: %w", rec.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return Message{}, false, fmt.Errorf("enqueue record %d: rows affected: %w", rec.ID, err)
	}

	msg, err = scanMessage(tx.QueryRowContext(ctx, selectMessage+` WHERE record_id = ?`, rec.ID))
	if err != nil {
		return Message{}, false, fmt.Errorf("enqueue record %d: select: %w", rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, false, fmt.Errorf("enqueue record %d: commit: %w", rec.ID, err)
	}
	return msg, n > 0, nil
}

// Pending returns undelivered messages in record order. limit <= 0 means all.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]Message, error) {
	query := selectMessage + ` WHERE delivered_at IS NULL ORDER BY record_id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}
	return msgs, nil
}

// ByRecord returns the message queued for a record id.
func (o *Outbox) ByRecord(ctx context.Context, recordID int64) (Message, error) {
	m, err := scanMessage(o.db.QueryRowContext(ctx, selectMessage+` WHERE record_id = ?`, recordID))
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message for record %d: %w", recordID, err)
	}
	return m, nil
}

// MarkDelivered records a successful delivery.
func (o *Outbox) MarkDelivered(ctx context.Context, id string) error {
	res, err := o.db.ExecContext(ctx, `
		UPDATE messages SET delivered_at = ?, attempts = attempts + 1, last_error = ''
		WHERE id = ? AND delivered_at IS NULL
	`, toMillis(o.now()), id)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return requireOneRow(res, "mark delivered")
}

// MarkFailed records a failed delivery attempt; the message stays pending.
func (o *Outbox) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := o.db.ExecContext(ctx, `
		UPDATE messages SET attempts = attempts + 1, last_error = ?
		WHERE id = ? AND delivered_at IS NULL
	`, msg, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireOneRow(res, "mark failed")
}

// Stats counts messages by state.
func (o *Outbox) Stats(ctx context.Context) (Stats, error) {
	var (
		s      Stats
		oldest sql.NullInt64
	)
	err := o.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN delivered_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN delivered_at IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN delivered_at IS NULL AND attempts > 0 THEN 1 ELSE 0 END), 0),
			MIN(CASE WHEN delivered_at IS NULL THEN created_at END)
		FROM messages
	`).Scan(&s.Pending, &s.Delivered, &s.Failing, &oldest)
	if err != nil {
		return Stats{}, fmt.Errorf("outbox stats: %w", err)
	}
	if oldest.Valid {
		t := fromMillis(oldest.Int64)
		s.OldestPending = &t
	}
	return s, nil
}

const selectMessage = `
	SELECT id, payload, created_at, attempts, last_error, delivered_at
	FROM messages`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		m         Message
		payload   string
		created   int64
		delivered sql.NullInt64
	)
	if err := row.Scan(&m.ID, &payload, &created, &m.Attempts, &m.LastError, &delivered); err != nil {
		return Message{}, err
	}
	if err := json.Unmarshal([]byte(payload), &m.Record); err != nil {
		return Message{}, fmt.Errorf("unmarshal payload of %s: %w", m.ID, err)
	}
	m.CreatedAt = fromMillis(created)
	if delivered.Valid {
		t := fromMillis(delivered.Int64)
		m.DeliveredAt = &t
	}
	return m, nil
}

func requireOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
