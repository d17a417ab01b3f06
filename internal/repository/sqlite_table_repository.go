package repository

import (
	"context"
	"ctchen222/passplay/internal/game"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type sqliteTableRepository struct {
	db  *sqlx.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteTableRepository creates a SQLite-based TableRepository for single
// node deployments. Tables expire ttl after their last write.
func NewSQLiteTableRepository(db *sqlx.DB, ttl time.Duration) TableRepository {
	return &sqliteTableRepository{db: db, ttl: ttl, now: time.Now}
}

type tableRow struct {
	ID        string `db:"id"`
	Board     string `db:"board"`
	ExpiresAt int64  `db:"expires_at"`
}

func (r *sqliteTableRepository) expiry() int64 {
	return r.now().Add(r.ttl).UnixMilli()
}

// Create stores a new table and drops any tables that have expired.
func (r *sqliteTableRepository) Create(ctx context.Context, id string, board game.Board) error {
	ctx, span := tracer.Start(ctx, "TableRepository.Create", trace.WithAttributes(attribute.String("table.id", id)))
	defer span.End()

	boardJSON, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("failed to marshal board: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM tables WHERE expires_at <= ?`, r.now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to purge expired tables: %w", err)
	}

	query := `INSERT INTO tables (id, board, expires_at) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, id, string(boardJSON), r.expiry()); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// FindByID loads the board of a table.
func (r *sqliteTableRepository) FindByID(ctx context.Context, id string) (game.Board, error) {
	ctx, span := tracer.Start(ctx, "TableRepository.FindByID", trace.WithAttributes(attribute.String("table.id", id)))
	defer span.End()

	return r.loadBoard(ctx, r.db, id)
}

// Update applies a change to a table inside a transaction.
func (r *sqliteTableRepository) Update(ctx context.Context, id string, apply func(*game.Engine) error) (game.Board, error) {
	ctx, span := tracer.Start(ctx, "TableRepository.Update", trace.WithAttributes(attribute.String("table.id", id)))
	defer span.End()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return game.Board{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	board, err := r.loadBoard(ctx, tx, id)
	if err != nil {
		return game.Board{}, err
	}
	engine, err := game.Restore(board)
	if err != nil {
		return game.Board{}, fmt.Errorf("stored board for table %s: %w", id, err)
	}
	if err := apply(engine); err != nil {
		return game.Board{}, err
	}

	updated := engine.Snapshot()
	boardJSON, err := json.Marshal(updated)
	if err != nil {
		return game.Board{}, fmt.Errorf("failed to marshal updated board: %w", err)
	}

	query := `UPDATE tables SET board = ?, expires_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, string(boardJSON), r.expiry(), id); err != nil {
		return game.Board{}, fmt.Errorf("failed to update table: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return game.Board{}, fmt.Errorf("failed to commit table update: %w", err)
	}
	return updated, nil
}

// Delete removes a live table. It returns ErrNotFound when no live table
// was removed, so of two racing deletes only one succeeds.
func (r *sqliteTableRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "TableRepository.Delete", trace.WithAttributes(attribute.String("table.id", id)))
	defer span.End()

	res, err := r.db.ExecContext(ctx, `DELETE FROM tables WHERE id = ? AND expires_at > ?`, id, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteTableRepository) loadBoard(ctx context.Context, q sqlx.QueryerContext, id string) (game.Board, error) {
	var row tableRow
	query := `SELECT id, board, expires_at FROM tables WHERE id = ? AND expires_at > ?`
	if err := sqlx.GetContext(ctx, q, &row, query, id, r.now().UnixMilli()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return game.Board{}, ErrNotFound
		}
		return game.Board{}, fmt.Errorf("failed to get table: %w", err)
	}

	var board game.Board
	if err := json.Unmarshal([]byte(row.Board), &board); err != nil {
		return game.Board{}, fmt.Errorf("failed to unmarshal board: %w", err)
	}
	return board, nil
}
