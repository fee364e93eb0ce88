package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iotflow/connectivity/internal/apierr"
)

const deviceColumns = `id, name, device_type, description, location, firmware_version, hardware_version, api_key, admin_status, created_at, updated_at, last_seen`

// Store is the Postgres-backed Credential Store Adapter.
type Store struct {
	pool         *pgxpool.Pool
	apiKeyLength int
}

// NewStore creates a Store backed by the given global connection pool.
// apiKeyLength is the number of characters generated for new api_keys.
func NewStore(pool *pgxpool.Pool, apiKeyLength int) *Store {
	return &Store{pool: pool, apiKeyLength: apiKeyLength}
}

func scanDevice(row pgx.Row) (Device, error) {
	var d Device
	err := row.Scan(
		&d.ID, &d.Name, &d.DeviceType, &d.Description, &d.Location,
		&d.FirmwareVersion, &d.HardwareVersion, &d.APIKey, &d.AdminStatus,
		&d.CreatedAt, &d.UpdatedAt, &d.LastSeen,
	)
	return d, err
}

// RegisterDevice creates a new device with a freshly generated api_key.
// Returns *apierr.Error{Kind: KindConflict, ExistingID: <id>} if name is
// already taken.
func (s *Store) RegisterDevice(ctx context.Context, p RegisterParams) (Device, error) {
	apiKey, err := generateAPIKey(s.apiKeyLength)
	if err != nil {
		return Device{}, apierr.Internal(err)
	}

	query := `INSERT INTO devices (name, device_type, description, location, firmware_version, hardware_version, api_key, admin_status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, 'active')
	RETURNING ` + deviceColumns

	row := s.pool.QueryRow(ctx, query,
		p.Name, p.DeviceType, p.Description, p.Location, p.FirmwareVersion, p.HardwareVersion, apiKey,
	)
	d, err := scanDevice(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			existingID, lookupErr := s.idByName(ctx, p.Name)
			if lookupErr != nil {
				return Device{}, apierr.Internal(err)
			}
			return Device{}, apierr.Conflict(existingID, "device name %q already registered", p.Name)
		}
		return Device{}, apierr.Internal(fmt.Errorf("registering device: %w", err))
	}
	return d, nil
}

func (s *Store) idByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM devices WHERE name = $1`, name).Scan(&id)
	return id, err
}

// GetByApiKey resolves a device from its raw api_key.
func (s *Store) GetByApiKey(ctx context.Context, apiKey string) (Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE api_key = $1`
	d, err := scanDevice(s.pool.QueryRow(ctx, query, apiKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, apierr.NotFound("no device with that api key")
	}
	if err != nil {
		return Device{}, apierr.Internal(fmt.Errorf("looking up device by api key: %w", err))
	}
	return d, nil
}

// GetByID resolves a device by its integer id.
func (s *Store) GetByID(ctx context.Context, id int64) (Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`
	d, err := scanDevice(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, apierr.NotFound("device %d not found", id)
	}
	if err != nil {
		return Device{}, apierr.Internal(fmt.Errorf("looking up device %d: %w", id, err))
	}
	return d, nil
}

// UpdateConfig applies a partial config update and returns the updated row.
func (s *Store) UpdateConfig(ctx context.Context, id int64, upd ConfigUpdate) (Device, error) {
	query := `UPDATE devices SET
		location = COALESCE($2, location),
		firmware_version = COALESCE($3, firmware_version),
		description = COALESCE($4, description),
		updated_at = now()
	WHERE id = $1
	RETURNING ` + deviceColumns

	d, err := scanDevice(s.pool.QueryRow(ctx, query, id, upd.Location, upd.FirmwareVersion, upd.Description))
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, apierr.NotFound("device %d not found", id)
	}
	if err != nil {
		return Device{}, apierr.Internal(fmt.Errorf("updating device %d config: %w", id, err))
	}
	return d, nil
}

// UpdateStatus transitions a device's admin_status.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status AdminStatus) (Device, error) {
	query := `UPDATE devices SET admin_status = $2, updated_at = now() WHERE id = $1 RETURNING ` + deviceColumns
	d, err := scanDevice(s.pool.QueryRow(ctx, query, id, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, apierr.NotFound("device %d not found", id)
	}
	if err != nil {
		return Device{}, apierr.Internal(fmt.Errorf("updating device %d status: %w", id, err))
	}
	return d, nil
}

// TouchLastSeen updates last_seen to now for the given device.
func (s *Store) TouchLastSeen(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE devices SET last_seen = now() WHERE id = $1`, id)
	if err != nil {
		return apierr.Internal(fmt.Errorf("touching last_seen for device %d: %w", id, err))
	}
	if tag.RowsAffected() == 0 {
		return apierr.NotFound("device %d not found", id)
	}
	return nil
}

// Delete permanently removes a device row.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return apierr.Internal(fmt.Errorf("deleting device %d: %w", id, err))
	}
	if tag.RowsAffected() == 0 {
		return apierr.NotFound("device %d not found", id)
	}
	return nil
}

// List returns devices ordered by id, offset/limit paginated.
func (s *Store) List(ctx context.Context, offset, limit int) ([]Device, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM devices`).Scan(&total); err != nil {
		return nil, 0, apierr.Internal(fmt.Errorf("counting devices: %w", err))
	}

	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY id LIMIT $1 OFFSET $2`
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, apierr.Internal(fmt.Errorf("listing devices: %w", err))
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, 0, apierr.Internal(fmt.Errorf("scanning device row: %w", err))
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apierr.Internal(fmt.Errorf("iterating device rows: %w", err))
	}
	return devices, total, nil
}

// Health verifies the store can reach Postgres.
func (s *Store) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
