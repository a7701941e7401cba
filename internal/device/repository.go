package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Create inserts a new device.
	// Returns ErrDeviceExists if the MAC address or public ID is taken.
	Create(ctx context.Context, device *Device) error

	// GetByID retrieves a device by its internal identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByMAC retrieves a device by its MAC address.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByMAC(ctx context.Context, mac string) (*Device, error)

	// GetByPublicID retrieves a device by its topic-facing public ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByPublicID(ctx context.Context, publicID string) (*Device, error)

	// List retrieves all devices that are not soft-deleted.
	List(ctx context.Context) ([]Device, error)

	// Update applies a sparse update to an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, id string, params UpdateParams) error

	// SetClientMode sets the client mode flag for a device.
	// Returns ErrDeviceNotFound if the device does not exist.
	SetClientMode(ctx context.Context, id string, on bool) error

	// SoftDelete marks a device as deleted without removing its row.
	// Returns ErrDeviceNotFound if the device does not exist.
	SoftDelete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, mac_address, board_number, public_id, secret_key,
	is_client_mode_on, hotspot_id, hotspot_password, client_id, client_password,
	admin_id, admin_password, wifi_ssid, wifi_password, company_id,
	registered_by, is_deleted, created_at, updated_at`

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		device.ID,
		device.MACAddress,
		device.BoardNumber,
		device.PublicID,
		device.SecretKey,
		boolToInt(device.IsClientModeOn),
		nullableString(device.HotspotID),
		nullableString(device.HotspotPassword),
		nullableString(device.ClientID),
		nullableString(device.ClientPassword),
		nullableString(device.AdminID),
		nullableString(device.AdminPassword),
		nullableString(device.WifiSSID),
		nullableString(device.WifiPassword),
		nullableString(device.CompanyID),
		nullableString(device.RegisteredBy),
		boolToInt(device.IsDeleted),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// GetByID retrieves a device by its internal identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	return r.getByColumn(ctx, "id", id)
}

// GetByMAC retrieves a device by its MAC address.
func (r *SQLiteRepository) GetByMAC(ctx context.Context, mac string) (*Device, error) {
	return r.getByColumn(ctx, "mac_address", mac)
}

// GetByPublicID retrieves a device by its topic-facing public ID.
func (r *SQLiteRepository) GetByPublicID(ctx context.Context, publicID string) (*Device, error) {
	return r.getByColumn(ctx, "public_id", publicID)
}

func (r *SQLiteRepository) getByColumn(ctx context.Context, column, value string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE ` + column + ` = ? AND is_deleted = 0`

	row := r.db.QueryRowContext(ctx, query, value)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by %s: %w", column, err)
	}
	return device, nil
}

// List retrieves all devices that are not soft-deleted.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE is_deleted = 0 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// Update applies a sparse update to an existing device.
// Only the non-nil fields of params are written.
func (r *SQLiteRepository) Update(ctx context.Context, id string, params UpdateParams) error {
	if params.IsZero() {
		// Nothing to change; still verify the device exists.
		_, err := r.GetByID(ctx, id)
		return err
	}

	var sets []string
	var args []any

	set := func(column string, value *string) {
		if value != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *value)
		}
	}

	set("board_number", params.BoardNumber)
	set("hotspot_id", params.HotspotID)
	set("hotspot_password", params.HotspotPassword)
	set("client_id", params.ClientID)
	set("client_password", params.ClientPassword)
	set("admin_id", params.AdminID)
	set("admin_password", params.AdminPassword)
	set("wifi_ssid", params.WifiSSID)
	set("wifi_password", params.WifiPassword)
	set("company_id", params.CompanyID)

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339))
	args = append(args, id)

	query := "UPDATE devices SET " + strings.Join(sets, ", ") + " WHERE id = ? AND is_deleted = 0"

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	return requireRowsAffected(result)
}

// SetClientMode sets the client mode flag for a device.
func (r *SQLiteRepository) SetClientMode(ctx context.Context, id string, on bool) error {
	query := `
		UPDATE devices
		SET is_client_mode_on = ?, updated_at = ?
		WHERE id = ? AND is_deleted = 0`

	result, err := r.db.ExecContext(ctx, query,
		boolToInt(on),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating client mode: %w", err)
	}

	return requireRowsAffected(result)
}

// SoftDelete marks a device as deleted without removing its row.
func (r *SQLiteRepository) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE devices
		SET is_deleted = 1, updated_at = ?
		WHERE id = ? AND is_deleted = 0`

	result, err := r.db.ExecContext(ctx, query,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("soft-deleting device: %w", err)
	}

	return requireRowsAffected(result)
}

// requireRowsAffected maps a zero-row update to ErrDeviceNotFound.
func requireRowsAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row or rows result into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var hotspotID, hotspotPassword sql.NullString
	var clientID, clientPassword sql.NullString
	var adminID, adminPassword sql.NullString
	var wifiSSID, wifiPassword sql.NullString
	var companyID, registeredBy sql.NullString
	var isClientModeOn, isDeleted int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.MACAddress,
		&d.BoardNumber,
		&d.PublicID,
		&d.SecretKey,
		&isClientModeOn,
		&hotspotID,
		&hotspotPassword,
		&clientID,
		&clientPassword,
		&adminID,
		&adminPassword,
		&wifiSSID,
		&wifiPassword,
		&companyID,
		&registeredBy,
		&isDeleted,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.IsClientModeOn = isClientModeOn != 0
	d.IsDeleted = isDeleted != 0
	d.HotspotID = stringPtr(hotspotID)
	d.HotspotPassword = stringPtr(hotspotPassword)
	d.ClientID = stringPtr(clientID)
	d.ClientPassword = stringPtr(clientPassword)
	d.AdminID = stringPtr(adminID)
	d.AdminPassword = stringPtr(adminPassword)
	d.WifiSSID = stringPtr(wifiSSID)
	d.WifiPassword = stringPtr(wifiPassword)
	d.CompanyID = stringPtr(companyID)
	d.RegisteredBy = stringPtr(registeredBy)

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &d, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// stringPtr returns a pointer for a valid sql.NullString, nil otherwise.
func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
