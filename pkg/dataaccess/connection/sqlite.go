package connection

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SQLite opens an embedded SQLite database as a connection pool.
type SQLite struct {
	// Path is the database file. The parent directory must exist.
	Path string

	// PoolSize is the number of connections. Defaults to 4.
	PoolSize int

	// Schema is executed on every new connection. It must be idempotent.
	Schema string

	// Logger receives pool lifecycle messages.
	Logger *slog.Logger
}

// pragmas are applied to every connection before the schema.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// Connect opens the pool and checks that a connection can be prepared.
func (s *SQLite) Connect(ctx context.Context) (*sqlitex.Pool, error) {
	if s.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	size := s.PoolSize
	if size <= 0 {
		size = 4
	}

	l := s.Logger
	if l == nil {
		l = slog.Default()
	}

	pool, err := sqlitex.NewPool(s.Path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: s.prepare,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite %s: %w", s.Path, err)
	}

	// Take one connection so that schema errors surface here rather than on first use.
	conn, err := pool.Take(ctx)
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("error preparing sqlite %s: %w", s.Path, err)
	}
	pool.Put(conn)

	l.Info("sqlite pool opened", slog.String("path", s.Path), slog.Int("pool_size", size))
	return pool, nil
}

func (s *SQLite) prepare(conn *sqlite.Conn) error {
	for _, p := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, p, nil); err != nil {
			return fmt.Errorf("error applying %s: %w", p, err)
		}
	}

	if s.Schema == "" {
		return nil
	}
	if err := sqlitex.ExecuteScript(conn, s.Schema, nil); err != nil {
		return fmt.Errorf("error applying schema: %w", err)
	}
	return nil
}
