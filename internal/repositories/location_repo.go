package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/models"
)

type PostgresLocationBindingRepository struct {
	db DB
}

func NewPostgresLocationBindingRepository(db DB) *PostgresLocationBindingRepository {
	return &PostgresLocationBindingRepository{db: db}
}

func (r *PostgresLocationBindingRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.LocationBinding, error) {
	query := `SELECT id, owner_id, access_point_id, display_name, icon_id, color_hex, created_at, updated_at
	          FROM location_bindings
	          WHERE owner_id = $1
	          ORDER BY display_name`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query location bindings: %w", err)
	}
	defer rows.Close()

	var bindings []*models.LocationBinding
	for rows.Next() {
		var b models.LocationBinding
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.AccessPointID, &b.DisplayName, &b.IconID, &b.ColorHex, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan location binding: %w", err)
		}
		bindings = append(bindings, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating location bindings: %w", err)
	}
	return bindings, nil
}

// Upsert creates the binding or, if the owner already bound this access
// point, overwrites its display fields. The access point id is stored
// normalized.
func (r *PostgresLocationBindingRepository) Upsert(ctx context.Context, binding *models.LocationBinding) error {
	b := binding.WithDefaults()
	b.AccessPointID = models.NormalizeAccessPointID(b.AccessPointID)
	if b.AccessPointID == "" || b.DisplayName == "" {
		return fmt.Errorf("access point id and display name are required")
	}

	query := `INSERT INTO location_bindings (owner_id, access_point_id, display_name, icon_id, color_hex)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (owner_id, access_point_id) DO UPDATE
	          SET display_name = EXCLUDED.display_name,
	              icon_id = EXCLUDED.icon_id,
	              color_hex = EXCLUDED.color_hex,
	              updated_at = NOW()
	          RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, b.OwnerID, b.AccessPointID, b.DisplayName, b.IconID, b.ColorHex).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert location binding: %w", err)
	}
	*binding = b
	return nil
}

func (r *PostgresLocationBindingRepository) Delete(ctx context.Context, ownerID uuid.UUID, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM location_bindings WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete location binding: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
