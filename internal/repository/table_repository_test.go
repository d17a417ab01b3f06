package repository

import (
	"context"
	"ctchen222/passplay/internal/db"
	"ctchen222/passplay/internal/game"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestSQLiteTableRepository(t *testing.T) {
	ctx := context.Background()
	pool, err := db.SQLiteConnect(ctx, filepath.Join(t.TempDir(), "tables.db"))
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	testTableRepository(t, NewSQLiteTableRepository(pool, time.Hour))
}

func TestSQLiteTableRepository_Expiry(t *testing.T) {
	ctx := context.Background()
	pool, err := db.SQLiteConnect(ctx, filepath.Join(t.TempDir(), "tables.db"))
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := &sqliteTableRepository{db: pool, ttl: time.Minute, now: func() time.Time { return now }}

	require.NoError(t, repo.Create(ctx, "stale", game.Board{}))
	_, err = repo.FindByID(ctx, "stale")
	require.NoError(t, err)

	// When: the TTL passes without a write
	now = now.Add(2 * time.Minute)

	// Then: the table is gone for reads and updates
	_, err = repo.FindByID(ctx, "stale")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Update(ctx, "stale", func(e *game.Engine) error { return e.PlaceMark(0) })
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "stale"), ErrNotFound)

	// Then: the next create purges it
	require.NoError(t, repo.Create(ctx, "fresh", game.Board{}))
	var count int
	require.NoError(t, pool.GetContext(ctx, &count, `SELECT COUNT(*) FROM tables`))
	assert.Equal(t, 1, count)
}

func TestRedisTableRepository(t *testing.T) {
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })

	repo := NewRedisTableRepository(rdb, time.Hour)
	testTableRepository(t, repo)

	t.Run("TTL is set on write", func(t *testing.T) {
		id := uuid.New().String()
		require.NoError(t, repo.Create(ctx, id, game.Board{}))

		ttl, err := rdb.TTL(ctx, tableKey(id)).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 59*time.Minute)
	})
}

// testTableRepository runs the behaviour every TableRepository must share.
func testTableRepository(t *testing.T, repo TableRepository) {
	ctx := context.Background()

	t.Run("Create and find", func(t *testing.T) {
		id := uuid.New().String()
		require.NoError(t, repo.Create(ctx, id, game.Board{}))

		board, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, game.Board{}, board)
	})

	t.Run("Unknown table", func(t *testing.T) {
		_, err := repo.FindByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = repo.Update(ctx, "missing", func(*game.Engine) error { return nil })
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Update stores accepted placements", func(t *testing.T) {
		id := uuid.New().String()
		require.NoError(t, repo.Create(ctx, id, game.Board{}))

		board, err := repo.Update(ctx, id, func(e *game.Engine) error { return e.PlaceMark(4) })
		require.NoError(t, err)
		assert.Equal(t, game.PlayerA, board[4])

		board, err = repo.Update(ctx, id, func(e *game.Engine) error { return e.PlaceMark(0) })
		require.NoError(t, err)
		assert.Equal(t, game.PlayerB, board[0])

		stored, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, board, stored)
	})

	t.Run("Rejected placement writes nothing", func(t *testing.T) {
		id := uuid.New().String()
		require.NoError(t, repo.Create(ctx, id, game.Board{}))
		_, err := repo.Update(ctx, id, func(e *game.Engine) error { return e.PlaceMark(4) })
		require.NoError(t, err)

		_, err = repo.Update(ctx, id, func(e *game.Engine) error { return e.PlaceMark(4) })
		assert.ErrorIs(t, err, game.ErrInvalidMove)

		stored, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, game.Board{4: game.PlayerA}, stored)
	})

	t.Run("Concurrent placements are serialized", func(t *testing.T) {
		id := uuid.New().String()
		require.NoError(t, repo.Create(ctx, id, game.Board{}))

		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := range errs {
			wg.Add(1)
			go func(slot int) {
				defer wg.Done()
				_, errs[slot] = repo.Update(ctx, id, func(e *game.Engine) error { return e.PlaceMark(slot) })
			}(i)
		}
		wg.Wait()

		stored, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		engine, err := game.Restore(stored)
		require.NoError(t, err, "stored board must keep the turn invariant")

		accepted := 0
		for _, err := range errs {
			if err == nil {
				accepted++
			}
		}
		assert.Equal(t, accepted, engine.Moves())
	})

	t.Run("Delete", func(t *testing.T) {
		id := uuid.New().String()
		require.NoError(t, repo.Create(ctx, id, game.Board{}))

		require.NoError(t, repo.Delete(ctx, id))
		assert.ErrorIs(t, repo.Delete(ctx, id), ErrNotFound)

		_, err := repo.FindByID(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Concurrent deletes remove once", func(t *testing.T) {
		id := uuid.New().String()
		require.NoError(t, repo.Create(ctx, id, game.Board{}))

		const racers = 4
		var wg sync.WaitGroup
		errs := make(chan error, racers)
		for range racers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- repo.Delete(ctx, id)
			}()
		}
		wg.Wait()
		close(errs)

		removed := 0
		for err := range errs {
			if err == nil {
				removed++
				continue
			}
			assert.ErrorIs(t, err, ErrNotFound)
		}
		assert.Equal(t, 1, removed)
	})
}
