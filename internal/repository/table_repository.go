package repository

import (
	"context"
	"ctchen222/passplay/internal/game"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("repository.table")

// ErrNotFound is returned for tables that never existed, were closed or expired.
var ErrNotFound = errors.New("table not found")

const (
	fieldBoard = "board"

	// maxTxRetries bounds optimistic-lock retries when two requests race on a table.
	maxTxRetries = 5
)

//go:generate mockgen -destination=mocks/mock_table_repository.go -package=mocks ctchen222/passplay/internal/repository TableRepository

// TableRepository stores the current board of each live table.
type TableRepository interface {
	Create(ctx context.Context, id string, board game.Board) error
	FindByID(ctx context.Context, id string) (game.Board, error)
	// Update restores the stored board into an engine, runs apply on it and
	// stores the result. Nothing is written when apply returns an error.
	Update(ctx context.Context, id string, apply func(*game.Engine) error) (game.Board, error)
	// Delete removes a table, returning ErrNotFound when there was none.
	Delete(ctx context.Context, id string) error
}

type redisTableRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisTableRepository creates a Redis-based TableRepository. Tables expire
// ttl after their last write.
func NewRedisTableRepository(rdb *redis.Client, ttl time.Duration) TableRepository {
	return &redisTableRepository{rdb: rdb, ttl: ttl}
}

func tableKey(id string) string {
	return fmt.Sprintf("table:%s", id)
}

// Create stores a new table.
func (r *redisTableRepository) Create(ctx context.Context, id string, board game.Board) error {
	ctx, span := tracer.Start(ctx, "TableRepository.Create", trace.WithAttributes(attribute.String("table.id", id)))
	defer span.End()

	boardJSON, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("failed to marshal board: %w", err)
	}

	key := tableKey(id)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, fieldBoard, boardJSON)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create table in redis: %w", err)
	}
	return nil
}

// FindByID loads the board of a table.
func (r *redisTableRepository) FindByID(ctx context.Context, id string) (game.Board, error) {
	ctx, span := tracer.Start(ctx, "TableRepository.FindByID", trace.WithAttributes(attribute.String("table.id", id)))
	defer span.End()

	return loadBoard(ctx, r.rdb, tableKey(id))
}

// Update applies a change to a table under WATCH so concurrent requests on
// the same table are serialized.
func (r *redisTableRepository) Update(ctx context.Context, id string, apply func(*game.Engine) error) (game.Board, error) {
	ctx, span := tracer.Start(ctx, "TableRepository.Update", trace.WithAttributes(attribute.String("table.id", id)))
	defer span.End()

	key := tableKey(id)
	var updated game.Board

	txf := func(tx *redis.Tx) error {
		board, err := loadBoard(ctx, tx, key)
		if err != nil {
			return err
		}
		engine, err := game.Restore(board)
		if err != nil {
			return fmt.Errorf("stored board for table %s: %w", id, err)
		}
		if err := apply(engine); err != nil {
			return err
		}

		updated = engine.Snapshot()
		boardJSON, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("failed to marshal updated board: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldBoard, boardJSON)
			pipe.Expire(ctx, key, r.ttl)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= maxTxRetries; attempt++ {
		err := r.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			span.AddEvent("optimistic lock lost", trace.WithAttributes(attribute.Int("attempt", attempt)))
			continue
		}
		if err != nil {
			return game.Board{}, err
		}
		return updated, nil
	}
	return game.Board{}, fmt.Errorf("table %s: too much contention after %d attempts", id, maxTxRetries)
}

// Delete removes a table. It returns ErrNotFound when the key was already
// gone, so of two racing deletes only one succeeds.
func (r *redisTableRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "TableRepository.Delete", trace.WithAttributes(attribute.String("table.id", id)))
	defer span.End()

	n, err := r.rdb.Del(ctx, tableKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type hashGetter interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func loadBoard(ctx context.Context, c hashGetter, key string) (game.Board, error) {
	raw, err := c.HGet(ctx, key, fieldBoard).Result()
	if errors.Is(err, redis.Nil) {
		return game.Board{}, ErrNotFound
	}
	if err != nil {
		return game.Board{}, fmt.Errorf("failed to get table from redis: %w", err)
	}

	var board game.Board
	if err := json.Unmarshal([]byte(raw), &board); err != nil {
		return game.Board{}, fmt.Errorf("failed to unmarshal board: %w", err)
	}
	return board, nil
}
