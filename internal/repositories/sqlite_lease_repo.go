package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/prudhvinik1/homepresence/internal/database"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SQLiteLeaseStore hands out named, expiring leases on the local database.
// A lease is held by one holder until it is released or expires.
type SQLiteLeaseStore struct {
	pool *database.SQLitePool
	now  func() time.Time
}

func NewSQLiteLeaseStore(pool *database.SQLitePool) *SQLiteLeaseStore {
	return &SQLiteLeaseStore{pool: pool, now: time.Now}
}

// Acquire takes the lease for holder, or extends it when holder already
// has it. It reports false when another holder's lease is still live.
func (s *SQLiteLeaseStore) Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer s.pool.Put(conn)

	now := s.now()
	err = sqlitex.Execute(conn,
		`INSERT INTO lease (name, holder, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
		 WHERE lease.expires_at <= ? OR lease.holder = excluded.holder`,
		&sqlitex.ExecOptions{Args: []any{name, holder, now.Add(ttl).UnixMilli(), now.UnixMilli()}})
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	return conn.Changes() > 0, nil
}

// Release drops the lease if holder still has it.
func (s *SQLiteLeaseStore) Release(ctx context.Context, name, holder string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM lease WHERE name = ? AND holder = ?`,
		&sqlitex.ExecOptions{Args: []any{name, holder}})
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}
