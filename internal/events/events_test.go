package events

import (
	"context"
	"ctchen222/passplay/internal/game"
	"runtime"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestNewEventRoundTrip(t *testing.T) {
	slot := 4
	payload := TablePayload{
		TableID: "t1",
		Board:   game.Board{4: game.PlayerA},
		Next:    game.PlayerB,
		Outcome: game.InProgress(),
		Cue:     game.CueGoodMove,
		Slot:    &slot,
	}

	event, err := NewEvent(TypeMarkPlaced, payload)
	require.NoError(t, err)
	assert.Equal(t, TypeMarkPlaced, event.Type)

	got, err := event.Table()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestLocalBroker(t *testing.T) {
	testBroker(t, NewLocalBroker())
}

func TestLocalBroker_UnsubscribeOnCancel(t *testing.T) {
	b := NewLocalBroker()
	ctx, cancel := context.WithCancel(context.Background())

	ch, _, err := b.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed after cancel")
	}

	require.NoError(t, b.Publish(context.Background(), Event{Type: TypeTableReset}))
}

func TestLocalBroker_UnsubscribeReleasesWatcher(t *testing.T) {
	b := NewLocalBroker()
	before := runtime.NumGoroutine()

	// Subscriptions whose context never ends, closed explicitly.
	for range 50 {
		ch, unsubscribe, err := b.Subscribe(context.Background())
		require.NoError(t, err)
		require.NoError(t, unsubscribe())
		require.NoError(t, unsubscribe())

		_, ok := <-ch
		assert.False(t, ok)
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, time.Second, 10*time.Millisecond, "subscription goroutines outlived unsubscribe")
	require.NoError(t, b.Publish(context.Background(), Event{Type: TypeTableReset}))
}

func TestRedisBroker(t *testing.T) {
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

	testBroker(t, NewRedisBroker(rdb))
}

func testBroker(t *testing.T, b Broker) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, closeFirst, err := b.Subscribe(ctx)
	require.NoError(t, err)
	defer closeFirst()
	second, closeSecond, err := b.Subscribe(ctx)
	require.NoError(t, err)
	defer closeSecond()

	event, err := NewEvent(TypeGameOver, TablePayload{
		TableID: "t1",
		Outcome: game.Win(game.PlayerA, game.Lines[0]),
		Cue:     game.CueWin,
	})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, event))

	for _, ch := range []<-chan Event{first, second} {
		select {
		case got := <-ch:
			assert.Equal(t, TypeGameOver, got.Type)
			payload, err := got.Table()
			require.NoError(t, err)
			assert.Equal(t, "t1", payload.TableID)
			assert.Equal(t, game.PlayerA, payload.Outcome.Winner)
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}
