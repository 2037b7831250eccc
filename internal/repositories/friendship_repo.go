package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prudhvinik1/homepresence/internal/models"
)

type PostgresFriendshipRepository struct {
	db DB
}

func NewPostgresFriendshipRepository(db DB) *PostgresFriendshipRepository {
	return &PostgresFriendshipRepository{db: db}
}

const friendshipColumns = `id, participant_a, participant_b, status, requester_id, created_at, responded_at`

func (r *PostgresFriendshipRepository) Create(ctx context.Context, friendship *models.Friendship) error {
	if friendship.ParticipantA == friendship.ParticipantB {
		return fmt.Errorf("cannot befriend self")
	}

	query := `INSERT INTO friendships (participant_a, participant_b, status, requester_id)
	          VALUES ($1, $2, $3, $4)
	          RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		friendship.ParticipantA,
		friendship.ParticipantB,
		friendship.Status,
		friendship.RequesterID,
	).Scan(&friendship.ID, &friendship.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create friendship: %w", err)
	}
	return nil
}

func (r *PostgresFriendshipRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Friendship, error) {
	query := `SELECT ` + friendshipColumns + ` FROM friendships WHERE id = $1`

	friendship, err := scanFriendship(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get friendship: %w", err)
	}
	return friendship, nil
}

// ListAccepted returns the accepted edges the account participates in.
func (r *PostgresFriendshipRepository) ListAccepted(ctx context.Context, accountID uuid.UUID) ([]*models.Friendship, error) {
	query := `SELECT ` + friendshipColumns + `
	          FROM friendships
	          WHERE (participant_a = $1 OR participant_b = $1) AND status = $2
	          ORDER BY created_at`
	return r.list(ctx, query, accountID, models.FriendshipAccepted)
}

func (r *PostgresFriendshipRepository) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Friendship, error) {
	query := `SELECT ` + friendshipColumns + `
	          FROM friendships
	          WHERE participant_a = $1 OR participant_b = $1
	          ORDER BY created_at`
	return r.list(ctx, query, accountID)
}

// Accept moves a pending request to accepted. Only the addressee (the
// participant that did not send the request) may accept.
func (r *PostgresFriendshipRepository) Accept(ctx context.Context, id, addressee uuid.UUID) error {
	query := `UPDATE friendships
	          SET status = $1, responded_at = NOW()
	          WHERE id = $2 AND status = $3 AND requester_id <> $4
	            AND (participant_a = $4 OR participant_b = $4)`

	result, err := r.db.Exec(ctx, query, models.FriendshipAccepted, id, models.FriendshipPending, addressee)
	if err != nil {
		return fmt.Errorf("failed to accept friendship: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresFriendshipRepository) list(ctx context.Context, query string, args ...any) ([]*models.Friendship, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query friendships: %w", err)
	}
	defer rows.Close()

	var friendships []*models.Friendship
	for rows.Next() {
		friendship, err := scanFriendship(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friendship: %w", err)
		}
		friendships = append(friendships, friendship)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating friendships: %w", err)
	}
	return friendships, nil
}

func scanFriendship(row pgx.Row) (*models.Friendship, error) {
	var f models.Friendship
	var status string
	err := row.Scan(&f.ID, &f.ParticipantA, &f.ParticipantB, &status, &f.RequesterID, &f.CreatedAt, &f.RespondedAt)
	if err != nil {
		return nil, err
	}
	f.Status = models.FriendshipStatus(status)
	return &f, nil
}
