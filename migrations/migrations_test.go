package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/PCSdevs/pay-to-power-core/internal/infrastructure/database"
)

// openMigratedDB opens a fresh database and applies the embedded migrations.
func openMigratedDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	return db
}

func TestMigrateCreatesSchema(t *testing.T) {
	db := openMigratedDB(t)
	ctx := context.Background()

	tables := []string{"devices", "outbox_messages", "subscriptions", "subscription_history"}
	for _, table := range tables {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}
}

func TestMigratePendingSlotIndex(t *testing.T) {
	db := openMigratedDB(t)
	ctx := context.Background()

	var ddl string
	err := db.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'index' AND name = 'idx_outbox_pending'",
	).Scan(&ddl)
	if err != nil {
		t.Fatalf("idx_outbox_pending not created: %v", err)
	}

	// The partial unique index is what enforces a single pending slot
	// per (device, topic).
	_, err = db.ExecContext(ctx, `
		INSERT INTO devices (id, mac_address, public_id, secret_key)
		VALUES ('dev-1', 'aa:bb:cc:dd:ee:ff', 'Ab3', 'secret')
	`)
	if err != nil {
		t.Fatalf("insert device: %v", err)
	}

	insert := `
		INSERT INTO outbox_messages (id, device_id, topic, payload, delivery_status, timestamp)
		VALUES (?, 'dev-1', 'device/Ab3/wifi', '{}', ?, '2026-03-01T00:00:00Z')
	`
	if _, err := db.ExecContext(ctx, insert, "msg-1", "pending"); err != nil {
		t.Fatalf("insert pending: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "msg-2", "pending"); err == nil {
		t.Error("second pending row for the same slot should violate the index")
	}
	if _, err := db.ExecContext(ctx, insert, "msg-3", "acknowledged"); err != nil {
		t.Errorf("acknowledged rows must not be constrained: %v", err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := openMigratedDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM schema_migrations",
	).Scan(&count)
	if err != nil {
		t.Fatalf("schema_migrations query: %v", err)
	}
	if count != 1 {
		t.Errorf("applied migrations = %d, want 1", count)
	}
}
