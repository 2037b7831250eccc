package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/prudhvinik1/homepresence/internal/database"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SQLiteKeyValueStore is the agent's KeyValueStore on the local database.
type SQLiteKeyValueStore struct {
	pool *database.SQLitePool
}

func NewSQLiteKeyValueStore(pool *database.SQLitePool) *SQLiteKeyValueStore {
	return &SQLiteKeyValueStore{pool: pool}
}

func (s *SQLiteKeyValueStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, false, err
	}
	defer s.pool.Put(conn)

	var (
		value []byte
		found bool
	)
	err = sqlitex.Execute(conn, `SELECT value FROM kv WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, value)
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, found, nil
}

func (s *SQLiteKeyValueStore) Set(ctx context.Context, key string, value []byte) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{Args: []any{key, value, time.Now().UnixMilli()}})
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteKeyValueStore) Delete(ctx context.Context, key string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn, `DELETE FROM kv WHERE key = ?`, &sqlitex.ExecOptions{Args: []any{key}}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
