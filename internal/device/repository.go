package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository defines device persistence operations used by the Registry.
// This abstraction allows SQLite in production and mocks in tests.
type Repository interface {
	// GetByToken retrieves a device by token.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByToken(ctx context.Context, token string) (*Device, error)

	// List retrieves all devices ordered by token.
	List(ctx context.Context) ([]Device, error)

	// ListActiveAssignments returns a device's active assignments in
	// creation order.
	ListActiveAssignments(ctx context.Context, deviceID string) ([]Assignment, error)

	// GetCommandByToken retrieves a command definition.
	// Returns ErrCommandNotFound if the command does not exist.
	GetCommandByToken(ctx context.Context, token string) (*Command, error)

	// UpsertDevice inserts or updates a device keyed by token and sets
	// its ID.
	UpsertDevice(ctx context.Context, d *Device) error

	// UpsertAssignment inserts or updates an assignment keyed by token.
	UpsertAssignment(ctx context.Context, a *Assignment) error

	// UpsertCommand inserts or updates a command keyed by token.
	UpsertCommand(ctx context.Context, c *Command) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, token, device_type_id, metadata, parent_token, created_at, updated_at`

// GetByToken retrieves a device by token.
func (r *SQLiteRepository) GetByToken(ctx context.Context, token string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE token = ?`, token)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by token: %w", err)
	}
	return d, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY token`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// ListActiveAssignments returns active assignments oldest first. Rowid
// breaks ties between assignments created in the same instant so the order
// is stable.
func (r *SQLiteRepository) ListActiveAssignments(ctx context.Context, deviceID string) ([]Assignment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, token, device_id, active, created_at
		FROM device_assignments
		WHERE device_id = ? AND active = 1
		ORDER BY created_at, rowid`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying assignments: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		var active int
		var createdAt string
		if err := rows.Scan(&a.ID, &a.Token, &a.DeviceID, &active, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		a.Active = active == 1
		a.CreatedAt = parseTime(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetCommandByToken retrieves a command definition.
func (r *SQLiteRepository) GetCommandByToken(ctx context.Context, token string) (*Command, error) {
	var c Command
	var params string
	err := r.db.QueryRowContext(ctx, `
		SELECT token, device_type_id, name, namespace, parameters
		FROM device_commands WHERE token = ?`, token).
		Scan(&c.Token, &c.DeviceTypeID, &c.Name, &c.Namespace, &params)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCommandNotFound
		}
		return nil, fmt.Errorf("querying command by token: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &c.Parameters); err != nil {
		return nil, fmt.Errorf("decoding parameters of command %q: %w", token, err)
	}
	return &c, nil
}

// UpsertDevice inserts or updates a device keyed by token.
func (r *SQLiteRepository) UpsertDevice(ctx context.Context, d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	meta, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	// On conflict the existing id wins; RETURNING hands it back.
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO devices (id, token, device_type_id, metadata, parent_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			device_type_id = excluded.device_type_id,
			metadata = excluded.metadata,
			parent_token = excluded.parent_token,
			updated_at = excluded.updated_at
		RETURNING id`,
		d.ID, d.Token, d.DeviceTypeID, string(meta), nullString(d.ParentToken),
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("upserting device %q: %w", d.Token, err)
	}
	return nil
}

// UpsertAssignment inserts or updates an assignment keyed by token.
func (r *SQLiteRepository) UpsertAssignment(ctx context.Context, a *Assignment) error {
	if a.Token == "" || a.DeviceID == "" {
		return fmt.Errorf("%w: assignment needs a token and a device id", ErrInvalidDevice)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	active := 0
	if a.Active {
		active = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_assignments (id, token, device_id, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			device_id = excluded.device_id,
			active = excluded.active`,
		a.ID, a.Token, a.DeviceID, active, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("upserting assignment %q: %w", a.Token, err)
	}
	return nil
}

// UpsertCommand inserts or updates a command keyed by token.
func (r *SQLiteRepository) UpsertCommand(ctx context.Context, c *Command) error {
	if err := c.Validate(); err != nil {
		return err
	}
	params, err := json.Marshal(c.Parameters)
	if err != nil {
		return fmt.Errorf("encoding parameters: %w", err)
	}
	if c.Parameters == nil {
		params = []byte("[]")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO device_commands (token, device_type_id, name, namespace, parameters)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			device_type_id = excluded.device_type_id,
			name = excluded.name,
			namespace = excluded.namespace,
			parameters = excluded.parameters`,
		c.Token, c.DeviceTypeID, c.Name, c.Namespace, string(params))
	if err != nil {
		return fmt.Errorf("upserting command %q: %w", c.Token, err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*Device, error) {
	var d Device
	var meta string
	var parent sql.NullString
	var createdAt, updatedAt string

	if err := s.Scan(&d.ID, &d.Token, &d.DeviceTypeID, &meta, &parent, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if meta != "" && meta != "null" {
		if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	d.ParentToken = parent.String
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// timeLayout keeps a fixed nine-digit fraction so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s) //nolint:errcheck // format is controlled
	return t
}
