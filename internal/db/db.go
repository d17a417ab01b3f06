package db

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
)

const tableSchema = `
CREATE TABLE IF NOT EXISTS tables (
	id         TEXT PRIMARY KEY,
	board      TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS tables_expires_at ON tables (expires_at);`

// SQLiteConnect opens the SQLite database at path and makes sure the live
// table schema exists.
func SQLiteConnect(ctx context.Context, path string) (*sqlx.DB, error) {
	pool, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	pool.SetMaxOpenConns(1)

	if _, err := pool.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := pool.ExecContext(ctx, tableSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables schema: %w", err)
	}

	slog.InfoContext(ctx, "SQLite connection initialized and schema verified", "sqlite.path", path)
	return pool, nil
}
