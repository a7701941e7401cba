package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLiteRepository implements Repository using SQLite.
//
// Subscription writes and their history rows are committed in a single
// transaction so the audit trail can never miss a change.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a subscription and its "created" history row.
func (r *SQLiteRepository) Create(ctx context.Context, sub *Subscription, changedBy *string) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO subscriptions (id, device_id, mode, recurring, additional_time,
			due_timestamp, company_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.DeviceID,
		sub.Mode,
		boolToInt(sub.Recurring),
		sub.AdditionalTime,
		sub.DueTimestamp.UTC().Format(time.RFC3339),
		nullableString(sub.CompanyID),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSubscriptionExists
		}
		return fmt.Errorf("inserting subscription: %w", err)
	}

	if err := insertHistory(ctx, tx, sub, ActionCreated, changedBy); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing subscription: %w", err)
	}
	return nil
}

// GetByDeviceID retrieves the subscription for a device.
func (r *SQLiteRepository) GetByDeviceID(ctx context.Context, deviceID string) (*Subscription, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, device_id, mode, recurring, additional_time, due_timestamp,
			company_id, created_at, updated_at
		FROM subscriptions
		WHERE device_id = ?`,
		deviceID,
	)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	return sub, nil
}

// UpdateByDeviceID applies a sparse update and appends an "updated"
// history row.
func (r *SQLiteRepository) UpdateByDeviceID(ctx context.Context, deviceID string, params UpdateParams, changedBy *string) (*Subscription, error) {
	existing, err := r.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if params.Mode != nil {
		existing.Mode = *params.Mode
	}
	if params.Recurring != nil {
		existing.Recurring = *params.Recurring
	}
	if params.AdditionalTime != nil {
		existing.AdditionalTime = *params.AdditionalTime
	}
	if params.DueTimestamp != nil {
		existing.DueTimestamp = params.DueTimestamp.UTC()
	}
	existing.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions
		SET mode = ?, recurring = ?, additional_time = ?, due_timestamp = ?, updated_at = ?
		WHERE device_id = ?`,
		existing.Mode,
		boolToInt(existing.Recurring),
		existing.AdditionalTime,
		existing.DueTimestamp.Format(time.RFC3339),
		existing.UpdatedAt.Format(time.RFC3339),
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating subscription: %w", err)
	}

	if err := insertHistory(ctx, tx, existing, ActionUpdated, changedBy); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing subscription update: %w", err)
	}
	return existing, nil
}

// History returns the audit trail for a device, oldest first.
func (r *SQLiteRepository) History(ctx context.Context, deviceID string) ([]HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, subscription_id, device_id, mode, recurring, additional_time,
			due_timestamp, action, changed_by, company_id, created_at
		FROM subscription_history
		WHERE device_id = ?
		ORDER BY created_at, id`,
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying subscription history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var recurring int
		var action, dueTimestamp, createdAt string
		var changedBy, companyID sql.NullString

		err := rows.Scan(&e.ID, &e.SubscriptionID, &e.DeviceID, &e.Mode, &recurring,
			&e.AdditionalTime, &dueTimestamp, &action, &changedBy, &companyID, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}

		e.Recurring = recurring != 0
		e.Action = HistoryAction(action)
		e.ChangedBy = stringPtr(changedBy)
		e.CompanyID = stringPtr(companyID)

		e.DueTimestamp, err = time.Parse(time.RFC3339, dueTimestamp)
		if err != nil {
			return nil, fmt.Errorf("parsing due_timestamp: %w", err)
		}
		e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history entries: %w", err)
	}

	return entries, nil
}

// insertHistory appends a history row capturing the subscription state
// after a change.
func insertHistory(ctx context.Context, tx *sql.Tx, sub *Subscription, action HistoryAction, changedBy *string) error {
	// Nanosecond precision keeps history ordering stable when a
	// subscription is changed twice within the same second.
	_, err := tx.ExecContext(ctx, `
		INSERT INTO subscription_history (id, subscription_id, device_id, mode,
			recurring, additional_time, due_timestamp, action, changed_by,
			company_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(),
		sub.ID,
		sub.DeviceID,
		sub.Mode,
		boolToInt(sub.Recurring),
		sub.AdditionalTime,
		sub.DueTimestamp.UTC().Format(time.RFC3339),
		string(action),
		nullableString(changedBy),
		nullableString(sub.CompanyID),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}
	return nil
}

func scanSubscription(row *sql.Row) (*Subscription, error) {
	var s Subscription
	var recurring int
	var dueTimestamp, createdAt, updatedAt string
	var companyID sql.NullString

	err := row.Scan(&s.ID, &s.DeviceID, &s.Mode, &recurring, &s.AdditionalTime,
		&dueTimestamp, &companyID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	s.Recurring = recurring != 0
	s.CompanyID = stringPtr(companyID)

	var parseErr error
	s.DueTimestamp, parseErr = time.Parse(time.RFC3339, dueTimestamp)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing due_timestamp: %w", parseErr)
	}
	s.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	s.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &s, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
