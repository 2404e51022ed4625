package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	masterdata "fleet-telemetry/internal/masterdata/domain"
)

const defaultDevicesTable = "devices"

const deviceColumns = `id, external_id, factory_id, name, device_type, machine_name, location, is_active, last_seen, created_at`

// DeviceRepository is a Postgres implementation for devices.
type DeviceRepository struct {
	db    DBTX
	table string
}

// NewDeviceRepository constructs a repository.
func NewDeviceRepository(db DBTX, opts ...DeviceOption) *DeviceRepository {
	repo := &DeviceRepository{db: db, table: defaultDevicesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// DeviceOption configures the repository.
type DeviceOption func(*DeviceRepository)

// WithDeviceTable overrides the default table name.
func WithDeviceTable(table string) DeviceOption {
	return func(repo *DeviceRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a device by internal id.
func (r *DeviceRepository) Get(ctx context.Context, id string) (*masterdata.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	if id == "" {
		return nil, errors.New("device repo: empty id")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1
LIMIT 1`, deviceColumns, r.table)
	return r.getOne(ctx, query, id)
}

// FindByExternalID loads a device by its external identifier.
func (r *DeviceRepository) FindByExternalID(ctx context.Context, externalID string) (*masterdata.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	if externalID == "" {
		return nil, errors.New("device repo: empty external id")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE external_id = $1
LIMIT 1`, deviceColumns, r.table)
	return r.getOne(ctx, query, externalID)
}

func (r *DeviceRepository) getOne(ctx context.Context, query string, arg any) (*masterdata.Device, error) {
	device, err := scanDevice(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return device, nil
}

// List loads devices for a factory, or every device when factoryID is empty.
func (r *DeviceRepository) List(ctx context.Context, factoryID string) ([]masterdata.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}

	var (
		rows *sql.Rows
		err  error
	)
	if factoryID == "" {
		rows, err = r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
ORDER BY id ASC`, deviceColumns, r.table))
	} else {
		rows, err = r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
WHERE factory_id = $1
ORDER BY id ASC`, deviceColumns, r.table), factoryID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountByFactory counts devices owned by a factory.
func (r *DeviceRepository) CountByFactory(ctx context.Context, factoryID string) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("device repo: nil db")
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE factory_id = $1`, r.table)
	var count int
	if err := r.db.QueryRowContext(ctx, query, factoryID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountActiveSince counts devices of a factory whose heartbeat is at or after since.
func (r *DeviceRepository) CountActiveSince(ctx context.Context, factoryID string, since time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("device repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT COUNT(*)
FROM %s
WHERE factory_id = $1
	AND last_seen >= $2`, r.table)
	var count int
	if err := r.db.QueryRowContext(ctx, query, factoryID, since.UTC()).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// TouchLastSeen advances last_seen, never moving it backwards.
func (r *DeviceRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	if id == "" {
		return errors.New("device repo: empty id")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET last_seen = GREATEST(COALESCE(last_seen, $2), $2)
WHERE id = $1`, r.table)
	res, err := r.db.ExecContext(ctx, query, id, at.UTC())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return masterdata.ErrDeviceNotFound
	}
	return nil
}

// Create inserts a new device. A duplicate external id maps to ErrDeviceExists.
func (r *DeviceRepository) Create(ctx context.Context, device *masterdata.Device) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	if device == nil {
		return errors.New("device repo: nil device")
	}
	if err := device.Validate(); err != nil {
		return err
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	external_id,
	factory_id,
	name,
	device_type,
	machine_name,
	location,
	is_active,
	last_seen,
	created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
)`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		device.ID,
		device.ExternalID,
		device.FactoryID,
		device.Name,
		device.DeviceType,
		nullString(device.MachineName),
		nullString(device.Location),
		device.IsActive,
		nullTime(device.LastSeen),
		device.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return masterdata.ErrDeviceExists
		}
		return err
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*masterdata.Device, error) {
	var (
		device   masterdata.Device
		machine  sql.NullString
		location sql.NullString
		lastSeen sql.NullTime
	)
	if err := row.Scan(
		&device.ID,
		&device.ExternalID,
		&device.FactoryID,
		&device.Name,
		&device.DeviceType,
		&machine,
		&location,
		&device.IsActive,
		&lastSeen,
		&device.CreatedAt,
	); err != nil {
		return nil, err
	}
	device.MachineName = machine.String
	device.Location = location.String
	if lastSeen.Valid {
		seen := lastSeen.Time.UTC()
		device.LastSeen = &seen
	}
	device.CreatedAt = device.CreatedAt.UTC()
	return &device, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}

// isUniqueViolation recognises SQLSTATE 23505 from either supported driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "23505")
}
