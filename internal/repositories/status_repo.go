package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prudhvinik1/homepresence/internal/models"
)

type PostgresStatusRepository struct {
	db DB
}

func NewPostgresStatusRepository(db DB) *PostgresStatusRepository {
	return &PostgresStatusRepository{db: db}
}

// Upsert overwrites the owner's record in one statement, bumping its
// version and assigning updated_at. The previous row is read under
// FOR UPDATE so concurrent writers for the same owner each see the
// record they actually replaced. record.Version and record.UpdatedAt are
// populated on success.
func (r *PostgresStatusRepository) Upsert(ctx context.Context, record *models.StatusRecord) (*models.StatusRecord, error) {
	query := `WITH prev AS (
	              SELECT location_name, access_point_id, is_at_known_location, icon_id, color_hex, version, updated_at
	              FROM status_records
	              WHERE owner_id = $1
	              FOR UPDATE
	          ), upserted AS (
	              INSERT INTO status_records
	                  (owner_id, location_name, access_point_id, is_at_known_location, icon_id, color_hex, version, updated_at)
	              VALUES ($1, $2, $3, $4, $5, $6, 1, NOW())
	              ON CONFLICT (owner_id) DO UPDATE
	              SET location_name = EXCLUDED.location_name,
	                  access_point_id = EXCLUDED.access_point_id,
	                  is_at_known_location = EXCLUDED.is_at_known_location,
	                  icon_id = EXCLUDED.icon_id,
	                  color_hex = EXCLUDED.color_hex,
	                  version = status_records.version + 1,
	                  updated_at = NOW()
	              RETURNING version, updated_at
	          )
	          SELECT u.version, u.updated_at,
	                 p.location_name, p.access_point_id, p.is_at_known_location, p.icon_id, p.color_hex,
	                 p.version, p.updated_at
	          FROM upserted u LEFT JOIN prev p ON TRUE`

	var (
		prevKnown     *bool
		prevVersion   *int64
		prevUpdatedAt *time.Time
		prev          = &models.StatusRecord{OwnerID: record.OwnerID}
	)
	err := r.db.QueryRow(ctx, query,
		record.OwnerID,
		record.LocationName,
		record.AccessPointID,
		record.IsAtKnownLocation,
		record.IconID,
		record.ColorHex,
	).Scan(
		&record.Version,
		&record.UpdatedAt,
		&prev.LocationName,
		&prev.AccessPointID,
		&prevKnown,
		&prev.IconID,
		&prev.ColorHex,
		&prevVersion,
		&prevUpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert status: %w", err)
	}

	if prevVersion == nil {
		return nil, nil
	}
	prev.Version = *prevVersion
	if prevKnown != nil {
		prev.IsAtKnownLocation = *prevKnown
	}
	if prevUpdatedAt != nil {
		prev.UpdatedAt = *prevUpdatedAt
	}
	return prev, nil
}

func (r *PostgresStatusRepository) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.StatusRecord, error) {
	query := `SELECT owner_id, location_name, access_point_id, is_at_known_location, icon_id, color_hex, version, updated_at
	          FROM status_records
	          WHERE owner_id = $1`

	var rec models.StatusRecord
	err := r.db.QueryRow(ctx, query, ownerID).Scan(
		&rec.OwnerID,
		&rec.LocationName,
		&rec.AccessPointID,
		&rec.IsAtKnownLocation,
		&rec.IconID,
		&rec.ColorHex,
		&rec.Version,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return &rec, nil
}
