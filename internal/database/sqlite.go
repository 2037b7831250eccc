package database

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// agentSchema holds the device-local tables. kv stores small JSON blobs
// such as the last-reported snapshot; friend_status is the received
// presence cache, one row per friend; lease serializes evaluations
// across agent processes sharing the data dir.
const agentSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS friend_status (
	friend_id       TEXT PRIMARY KEY,
	location_name   TEXT NOT NULL DEFAULT '',
	access_point_id TEXT NOT NULL DEFAULT '',
	is_online       INTEGER NOT NULL DEFAULT 0,
	icon_id         TEXT NOT NULL DEFAULT '',
	color_hex       TEXT NOT NULL DEFAULT '',
	version         INTEGER NOT NULL DEFAULT 0,
	timestamp       TEXT NOT NULL DEFAULT '',
	received_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS lease (
	name       TEXT PRIMARY KEY,
	holder     TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
`

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// SQLitePool is the agent's local database. Connections are not safe for
// concurrent use; Take one per goroutine and Put it back.
type SQLitePool struct {
	inner  *sqlitex.Pool
	path   string
	logger *slog.Logger
}

// NewSQLitePool opens path (":memory:" is allowed with poolSize 1) and
// creates the agent schema on every connection.
func NewSQLitePool(path string, poolSize int, logger *slog.Logger) (*SQLitePool, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if poolSize <= 0 {
		poolSize = 2
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	inner, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareSQLiteConn,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite %s: %w", path, err)
	}

	logger.Info("sqlite pool opened", "path", path, "pool_size", poolSize)
	return &SQLitePool{inner: inner, path: path, logger: logger}, nil
}

func (p *SQLitePool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("error taking sqlite connection: %w", err)
	}
	return conn, nil
}

func (p *SQLitePool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

func (p *SQLitePool) Close() error {
	if err := p.inner.Close(); err != nil {
		return fmt.Errorf("error closing sqlite %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

func prepareSQLiteConn(conn *sqlite.Conn) error {
	for _, pragma := range sqlitePragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, agentSchema, nil); err != nil {
		return fmt.Errorf("error creating agent schema: %w", err)
	}
	return nil
}
