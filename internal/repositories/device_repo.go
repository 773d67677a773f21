package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BradenHooton/tappay/internal/database"
	"github.com/BradenHooton/tappay/internal/models"
)

const deviceColumns = `id, user_id, device_identifier, name, is_active, last_used_at, created_at`

type DeviceRepository struct {
	pool *pgxpool.Pool
}

func NewDeviceRepository(db *database.DB) *DeviceRepository {
	return &DeviceRepository{pool: db.Pool}
}

func scanDeviceRow(scanner rowScanner) (*models.Device, error) {
	var d models.Device
	err := scanner.Scan(&d.ID, &d.UserID, &d.DeviceIdentifier, &d.Name, &d.IsActive, &d.LastUsedAt, &d.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &d, nil
}

func scanDeviceRows(rows pgx.Rows) ([]*models.Device, error) {
	defer rows.Close()

	devices := make([]*models.Device, 0)
	for rows.Next() {
		d, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return devices, nil
}

// FindByIdentifier returns models.ErrNotFound for an unknown device identifier
func (r *DeviceRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE device_identifier = $1`
	return scanDeviceRow(r.pool.QueryRow(ctx, query, identifier))
}

func (r *DeviceRepository) GetByID(ctx context.Context, id string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`
	return scanDeviceRow(r.pool.QueryRow(ctx, query, id))
}

// Create inserts a device. A concurrent registration of the same identifier
// surfaces as models.ErrConflict from the unique index.
func (r *DeviceRepository) Create(ctx context.Context, device *models.Device) (*models.Device, error) {
	device.ID = uuid.New().String()
	device.CreatedAt = time.Now()
	device.IsActive = true

	query := `
		INSERT INTO devices (id, user_id, device_identifier, name, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + deviceColumns

	return scanDeviceRow(r.pool.QueryRow(ctx, query,
		device.ID, device.UserID, device.DeviceIdentifier, device.Name, device.IsActive, device.CreatedAt,
	))
}

func (r *DeviceRepository) ListByUser(ctx context.Context, userID string) ([]*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	return scanDeviceRows(rows)
}

func (r *DeviceRepository) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.pool.Exec(ctx, `UPDATE devices SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *DeviceRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	result, err := r.pool.Exec(ctx, `UPDATE devices SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
