package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/database"
	"github.com/prudhvinik1/homepresence/internal/models"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SQLiteFriendStatusStore keeps one received status row per friend.
type SQLiteFriendStatusStore struct {
	pool *database.SQLitePool
}

func NewSQLiteFriendStatusStore(pool *database.SQLitePool) *SQLiteFriendStatusStore {
	return &SQLiteFriendStatusStore{pool: pool}
}

const friendStatusColumns = `friend_id, location_name, access_point_id, is_online, icon_id, color_hex, version, timestamp, received_at`

func (s *SQLiteFriendStatusStore) Get(ctx context.Context, friendID uuid.UUID) (*models.FriendStatusEntry, error) {
	entries, err := s.query(ctx, `SELECT `+friendStatusColumns+` FROM friend_status WHERE friend_id = ?`, friendID.String())
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries[0], nil
}

func (s *SQLiteFriendStatusStore) List(ctx context.Context) ([]*models.FriendStatusEntry, error) {
	return s.query(ctx, `SELECT `+friendStatusColumns+` FROM friend_status ORDER BY received_at DESC`)
}

func (s *SQLiteFriendStatusStore) Upsert(ctx context.Context, entry *models.FriendStatusEntry) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO friend_status (`+friendStatusColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (friend_id) DO UPDATE SET
		     location_name = excluded.location_name,
		     access_point_id = excluded.access_point_id,
		     is_online = excluded.is_online,
		     icon_id = excluded.icon_id,
		     color_hex = excluded.color_hex,
		     version = excluded.version,
		     timestamp = excluded.timestamp,
		     received_at = excluded.received_at`,
		&sqlitex.ExecOptions{Args: []any{
			entry.FriendID.String(),
			entry.LocationName,
			entry.AccessPointID,
			entry.IsOnline,
			entry.IconID,
			entry.ColorHex,
			entry.Version,
			entry.Timestamp,
			entry.ReceivedAtEpochMillis,
		}})
	if err != nil {
		return fmt.Errorf("failed to upsert friend status: %w", err)
	}
	return nil
}

func (s *SQLiteFriendStatusStore) query(ctx context.Context, query string, args ...any) ([]*models.FriendStatusEntry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var entries []*models.FriendStatusEntry
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id, err := uuid.Parse(stmt.ColumnText(0))
			if err != nil {
				return fmt.Errorf("bad friend_id %q: %w", stmt.ColumnText(0), err)
			}
			entries = append(entries, &models.FriendStatusEntry{
				FriendID:              id,
				LocationName:          stmt.ColumnText(1),
				AccessPointID:         stmt.ColumnText(2),
				IsOnline:              stmt.ColumnBool(3),
				IconID:                stmt.ColumnText(4),
				ColorHex:              stmt.ColumnText(5),
				Version:               stmt.ColumnInt64(6),
				Timestamp:             stmt.ColumnText(7),
				ReceivedAtEpochMillis: stmt.ColumnInt64(8),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query friend status: %w", err)
	}
	return entries, nil
}
