package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the outbox table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE outbox_messages (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			topic TEXT NOT NULL,
			payload TEXT NOT NULL,
			delivery_status TEXT NOT NULL DEFAULT 'pending'
				CHECK (delivery_status IN ('pending', 'acknowledged')),
			timestamp TEXT NOT NULL
		) STRICT;
		CREATE UNIQUE INDEX idx_outbox_pending
			ON outbox_messages(device_id, topic)
			WHERE delivery_status = 'pending';
		CREATE INDEX idx_outbox_device_status
			ON outbox_messages(device_id, delivery_status);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestSQLiteStore_Put(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	t.Run("stores pending message", func(t *testing.T) {
		msg, err := store.Put(ctx, "dev-1", "device/Ab3/wifi", []byte(`{"ssid":"home"}`))
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		if msg.DeliveryStatus != StatusPending {
			t.Errorf("DeliveryStatus = %q, want %q", msg.DeliveryStatus, StatusPending)
		}
		if string(msg.Payload) != `{"ssid":"home"}` {
			t.Errorf("Payload = %q", msg.Payload)
		}
		if msg.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	})

	t.Run("overwrites occupied slot", func(t *testing.T) {
		first, err := store.Put(ctx, "dev-2", "device/Cd4/wifi", []byte(`{"ssid":"old"}`))
		if err != nil {
			t.Fatalf("first Put() error = %v", err)
		}

		second, err := store.Put(ctx, "dev-2", "device/Cd4/wifi", []byte(`{"ssid":"new"}`))
		if err != nil {
			t.Fatalf("second Put() error = %v", err)
		}

		// Same slot, same row: the original ID survives, content replaced.
		if second.ID != first.ID {
			t.Errorf("slot ID changed from %q to %q on overwrite", first.ID, second.ID)
		}
		if string(second.Payload) != `{"ssid":"new"}` {
			t.Errorf("Payload = %q, want overwritten value", second.Payload)
		}

		pending, err := store.ListPending(ctx, "dev-2")
		if err != nil {
			t.Fatalf("ListPending() error = %v", err)
		}
		if len(pending) != 1 {
			t.Fatalf("ListPending() returned %d messages, want 1", len(pending))
		}
	})

	t.Run("different topics get separate slots", func(t *testing.T) {
		if _, err := store.Put(ctx, "dev-3", "device/Ef5/wifi", []byte(`{}`)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if _, err := store.Put(ctx, "dev-3", "device/Ef5/subscription", []byte(`{}`)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		pending, err := store.ListPending(ctx, "dev-3")
		if err != nil {
			t.Fatalf("ListPending() error = %v", err)
		}
		if len(pending) != 2 {
			t.Errorf("ListPending() returned %d messages, want 2", len(pending))
		}
	})

	t.Run("rejects empty identifiers", func(t *testing.T) {
		if _, err := store.Put(ctx, "", "device/Ab3/wifi", []byte(`{}`)); err == nil {
			t.Error("Put() with empty device id expected error")
		}
		if _, err := store.Put(ctx, "dev-1", "", []byte(`{}`)); err == nil {
			t.Error("Put() with empty topic expected error")
		}
	})
}

func TestSQLiteStore_PeekPending(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	t.Run("returns nil when nothing pending", func(t *testing.T) {
		msg, err := store.PeekPending(ctx, "dev-empty")
		if err != nil {
			t.Fatalf("PeekPending() error = %v", err)
		}
		if msg != nil {
			t.Errorf("PeekPending() = %+v, want nil", msg)
		}
	})

	t.Run("returns oldest pending first", func(t *testing.T) {
		if _, err := store.Put(ctx, "dev-1", "device/Ab3/wifi", []byte(`{"n":1}`)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		time.Sleep(2 * time.Millisecond)
		if _, err := store.Put(ctx, "dev-1", "device/Ab3/subscription", []byte(`{"n":2}`)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		msg, err := store.PeekPending(ctx, "dev-1")
		if err != nil {
			t.Fatalf("PeekPending() error = %v", err)
		}
		if msg == nil {
			t.Fatal("PeekPending() = nil, want oldest message")
		}
		if msg.Topic != "device/Ab3/wifi" {
			t.Errorf("Topic = %q, want oldest slot first", msg.Topic)
		}
	})

	t.Run("overwrite moves slot to the back of the queue", func(t *testing.T) {
		time.Sleep(2 * time.Millisecond)
		// Refresh the wifi slot; its timestamp is now the newest.
		if _, err := store.Put(ctx, "dev-1", "device/Ab3/wifi", []byte(`{"n":3}`)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		msg, err := store.PeekPending(ctx, "dev-1")
		if err != nil {
			t.Fatalf("PeekPending() error = %v", err)
		}
		if msg.Topic != "device/Ab3/subscription" {
			t.Errorf("Topic = %q, want subscription slot after wifi overwrite", msg.Topic)
		}
	})
}

func TestSQLiteStore_Acknowledge(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	t.Run("acknowledges pending message", func(t *testing.T) {
		if _, err := store.Put(ctx, "dev-1", "device/Ab3/wifi", []byte(`{}`)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		ok, err := store.Acknowledge(ctx, "dev-1", "device/Ab3/wifi")
		if err != nil {
			t.Fatalf("Acknowledge() error = %v", err)
		}
		if !ok {
			t.Error("Acknowledge() = false, want true")
		}

		msg, err := store.PeekPending(ctx, "dev-1")
		if err != nil {
			t.Fatalf("PeekPending() error = %v", err)
		}
		if msg != nil {
			t.Errorf("PeekPending() = %+v after acknowledge, want nil", msg)
		}
	})

	t.Run("duplicate acknowledge is a no-op", func(t *testing.T) {
		ok, err := store.Acknowledge(ctx, "dev-1", "device/Ab3/wifi")
		if err != nil {
			t.Fatalf("Acknowledge() error = %v", err)
		}
		if ok {
			t.Error("Acknowledge() = true for already-acknowledged slot, want false")
		}
	})

	t.Run("unknown device or topic is a no-op", func(t *testing.T) {
		ok, err := store.Acknowledge(ctx, "dev-unknown", "device/Zz9/wifi")
		if err != nil {
			t.Fatalf("Acknowledge() error = %v", err)
		}
		if ok {
			t.Error("Acknowledge() = true for unknown slot, want false")
		}
	})

	t.Run("acknowledged history is retained", func(t *testing.T) {
		var count int
		err := db.QueryRow(
			`SELECT COUNT(*) FROM outbox_messages WHERE device_id = ? AND delivery_status = 'acknowledged'`,
			"dev-1",
		).Scan(&count)
		if err != nil {
			t.Fatalf("counting acknowledged rows: %v", err)
		}
		if count != 1 {
			t.Errorf("acknowledged rows = %d, want 1", count)
		}
	})

	t.Run("fresh slot after acknowledge gets a new row", func(t *testing.T) {
		msg, err := store.Put(ctx, "dev-1", "device/Ab3/wifi", []byte(`{"again":true}`))
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if msg.DeliveryStatus != StatusPending {
			t.Errorf("DeliveryStatus = %q, want pending", msg.DeliveryStatus)
		}

		// History row plus the new pending row coexist.
		var count int
		err = db.QueryRow(
			`SELECT COUNT(*) FROM outbox_messages WHERE device_id = ? AND topic = ?`,
			"dev-1", "device/Ab3/wifi",
		).Scan(&count)
		if err != nil {
			t.Fatalf("counting rows: %v", err)
		}
		if count != 2 {
			t.Errorf("rows for slot = %d, want 2 (history + pending)", count)
		}
	})
}

func TestSQLiteStore_PutConcurrentWithAcknowledge(t *testing.T) {
	db := setupTestDB(t)
	db.SetMaxOpenConns(1)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	// One goroutine refreshes the slot while another races to clear
	// it. Every Put must hand back the stored pending row; losing the
	// slot to an acknowledge mid-call must not surface as an error.
	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			msg, err := store.Put(ctx, "dev-1", "device/Ab3/wifi", []byte(`{}`))
			if err != nil {
				errCh <- err
				return
			}
			if msg == nil || msg.DeliveryStatus != StatusPending {
				errCh <- fmt.Errorf("Put() returned %+v, want pending message", msg)
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := store.Acknowledge(ctx, "dev-1", "device/Ab3/wifi"); err != nil {
				errCh <- err
				return
			}
		}
	}()

	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		t.Fatalf("concurrent Put/Acknowledge error = %v", err)
	}
}

func TestSQLiteStore_PendingCount(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLiteStore(db)
	ctx := context.Background()

	count, err := store.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("PendingCount() = %d, want 0", count)
	}

	if _, err := store.Put(ctx, "dev-1", "device/Ab3/wifi", []byte(`{}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := store.Put(ctx, "dev-2", "device/Cd4/subscription", []byte(`{}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	count, err = store.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if count != 2 {
		t.Errorf("PendingCount() = %d, want 2", count)
	}
}
