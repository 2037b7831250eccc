package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prudhvinik1/homepresence/internal/models"
)

type PostgresDeviceRepository struct {
	db DB
}

func NewPostgresDeviceRepository(db DB) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

const deviceColumns = `id, account_id, name, device_type, push_token,
	                 last_seen_at, revoked_at, created_at, updated_at, deleted_at`

func (r *PostgresDeviceRepository) Create(ctx context.Context, device *models.Device) error {
	query := `INSERT INTO devices (account_id, name, device_type)
	          VALUES ($1, $2, $3)
	          RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		device.AccountID,
		device.Name,
		device.DeviceType,
	).Scan(&device.ID, &device.CreatedAt, &device.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

func (r *PostgresDeviceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + `
	          FROM devices
	          WHERE id = $1 AND deleted_at IS NULL`

	device, err := scanDevice(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

func (r *PostgresDeviceRepository) GetDevicesByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Device, error) {
	query := `SELECT ` + deviceColumns + `
	          FROM devices
	          WHERE account_id = $1 AND deleted_at IS NULL
	          ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}

	return devices, nil
}

func (r *PostgresDeviceRepository) Update(ctx context.Context, device *models.Device) error {
	query := `UPDATE devices
	          SET name = $1, device_type = $2, updated_at = NOW()
	          WHERE id = $3 AND deleted_at IS NULL`

	result, err := r.db.Exec(ctx, query,
		device.Name,
		device.DeviceType,
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Revoke marks the device revoked and drops its push target.
func (r *PostgresDeviceRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE devices
	          SET revoked_at = $1, push_token = NULL, updated_at = NOW()
	          WHERE id = $2 AND revoked_at IS NULL AND deleted_at IS NULL`

	result, err := r.db.Exec(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to revoke device: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPushToken registers or refreshes the device's push target. A token
// can only belong to one device, so it is first removed from any other.
func (r *PostgresDeviceRepository) SetPushToken(ctx context.Context, id uuid.UUID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("push token must not be blank")
	}

	_, err := r.db.Exec(ctx,
		`UPDATE devices SET push_token = NULL, updated_at = NOW() WHERE push_token = $1 AND id <> $2`,
		token, id)
	if err != nil {
		return fmt.Errorf("failed to release push token: %w", err)
	}

	result, err := r.db.Exec(ctx,
		`UPDATE devices
		 SET push_token = $1, last_seen_at = NOW(), updated_at = NOW()
		 WHERE id = $2 AND revoked_at IS NULL AND deleted_at IS NULL`,
		token, id)
	if err != nil {
		return fmt.Errorf("failed to set push token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearPushToken forgets a token the push transport reported as invalid.
// Clearing an unknown token is not an error.
func (r *PostgresDeviceRepository) ClearPushToken(ctx context.Context, token string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE devices SET push_token = NULL, updated_at = NOW() WHERE push_token = $1`,
		token)
	if err != nil {
		return fmt.Errorf("failed to clear push token: %w", err)
	}
	return nil
}

// GetPushTarget returns the token of the account's most recently seen
// device that has one, or "" when there is none.
func (r *PostgresDeviceRepository) GetPushTarget(ctx context.Context, accountID uuid.UUID) (string, error) {
	query := `SELECT push_token
	          FROM devices
	          WHERE account_id = $1 AND push_token IS NOT NULL
	            AND revoked_at IS NULL AND deleted_at IS NULL
	          ORDER BY last_seen_at DESC NULLS LAST, created_at DESC
	          LIMIT 1`

	var token string
	err := r.db.QueryRow(ctx, query, accountID).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get push target: %w", err)
	}
	return strings.TrimSpace(token), nil
}

func scanDevice(row pgx.Row) (*models.Device, error) {
	var device models.Device
	err := row.Scan(
		&device.ID,
		&device.AccountID,
		&device.Name,
		&device.DeviceType,
		&device.PushToken,
		&device.LastSeenAt,
		&device.RevokedAt,
		&device.CreatedAt,
		&device.UpdatedAt,
		&device.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &device, nil
}
