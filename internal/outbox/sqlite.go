package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore implements Store using SQLite.
//
// The single-slot invariant is enforced by a partial unique index on
// (device_id, topic) WHERE delivery_status = 'pending'; Put upserts
// against that index so concurrent writers cannot duplicate a slot.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed outbox store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Put stores a pending message for the device and topic, overwriting the
// payload and timestamp of an existing pending slot.
func (s *SQLiteStore) Put(ctx context.Context, deviceID, topic string, payload []byte) (*Message, error) {
	if deviceID == "" || topic == "" {
		return nil, fmt.Errorf("outbox: device id and topic are required")
	}

	now := time.Now().UTC()
	id := uuid.New().String()

	// RETURNING makes the upsert and the read-back one statement, so a
	// concurrent acknowledge cannot slip between them. On conflict the
	// stored row keeps its original ID, not the one generated above.
	query := `
		INSERT INTO outbox_messages (id, device_id, topic, payload, delivery_status, timestamp)
		VALUES (?, ?, ?, ?, 'pending', ?)
		ON CONFLICT(device_id, topic) WHERE delivery_status = 'pending'
		DO UPDATE SET payload = excluded.payload, timestamp = excluded.timestamp
		RETURNING id, device_id, topic, payload, delivery_status, timestamp`

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query,
		id,
		deviceID,
		topic,
		string(payload),
		now.Format(time.RFC3339Nano),
	))
	if err != nil {
		return nil, fmt.Errorf("upserting outbox message: %w", err)
	}
	return msg, nil
}

// PeekPending returns the oldest pending message for the device, or nil
// if the device has nothing pending.
func (s *SQLiteStore) PeekPending(ctx context.Context, deviceID string) (*Message, error) {
	query := `
		SELECT id, device_id, topic, payload, delivery_status, timestamp
		FROM outbox_messages
		WHERE device_id = ? AND delivery_status = 'pending'
		ORDER BY timestamp, id
		LIMIT 1`

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying oldest pending message: %w", err)
	}
	return msg, nil
}

// Acknowledge marks the pending message for (device, topic) as
// acknowledged. Returns false if no pending message matched.
func (s *SQLiteStore) Acknowledge(ctx context.Context, deviceID, topic string) (bool, error) {
	query := `
		UPDATE outbox_messages
		SET delivery_status = 'acknowledged'
		WHERE device_id = ? AND topic = ? AND delivery_status = 'pending'`

	result, err := s.db.ExecContext(ctx, query, deviceID, topic)
	if err != nil {
		return false, fmt.Errorf("acknowledging outbox message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ListPending returns all pending messages for the device, oldest first.
func (s *SQLiteStore) ListPending(ctx context.Context, deviceID string) ([]Message, error) {
	query := `
		SELECT id, device_id, topic, payload, delivery_status, timestamp
		FROM outbox_messages
		WHERE device_id = ? AND delivery_status = 'pending'
		ORDER BY timestamp, id`

	rows, err := s.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying pending messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning outbox message: %w", err)
		}
		messages = append(messages, *msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outbox messages: %w", err)
	}

	return messages, nil
}

// PendingCount returns the number of pending messages across all devices.
func (s *SQLiteStore) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox_messages WHERE delivery_status = 'pending'`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting pending messages: %w", err)
	}
	return count, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(scanner rowScanner) (*Message, error) {
	var m Message
	var payload, status, timestamp string

	err := scanner.Scan(&m.ID, &m.DeviceID, &m.Topic, &payload, &status, &timestamp)
	if err != nil {
		return nil, err
	}

	m.Payload = []byte(payload)
	m.DeliveryStatus = DeliveryStatus(status)

	m.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}

	return &m, nil
}
