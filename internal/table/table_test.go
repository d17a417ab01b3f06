package table

import (
	"context"
	"ctchen222/passplay/internal/db"
	"ctchen222/passplay/internal/events"
	eventmocks "ctchen222/passplay/internal/events/mocks"
	"ctchen222/passplay/internal/game"
	"ctchen222/passplay/internal/repository"
	repomocks "ctchen222/passplay/internal/repository/mocks"
	"ctchen222/passplay/internal/telemetry"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// storedUpdate makes a mocked Update behave like the real repositories on a
// table holding board.
func storedUpdate(board game.Board) func(context.Context, string, func(*game.Engine) error) (game.Board, error) {
	return func(_ context.Context, _ string, apply func(*game.Engine) error) (game.Board, error) {
		e, err := game.Restore(board)
		if err != nil {
			return game.Board{}, err
		}
		if err := apply(e); err != nil {
			return game.Board{}, err
		}
		return e.Snapshot(), nil
	}
}

func newMockedService(t *testing.T) (*Service, *repomocks.MockTableRepository, *eventmocks.MockPublisher) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := repomocks.NewMockTableRepository(ctrl)
	pub := eventmocks.NewMockPublisher(ctrl)
	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)
	return NewService(repo, pub, metrics), repo, pub
}

// eventOfType matches an events.Event by its type.
type eventOfType string

func (m eventOfType) Matches(x any) bool {
	e, ok := x.(events.Event)
	return ok && e.Type == string(m)
}

func (m eventOfType) String() string {
	return "is a " + string(m) + " event"
}

func TestService_Open(t *testing.T) {
	svc, repo, _ := newMockedService(t)
	ctx := context.Background()

	repo.EXPECT().Create(gomock.Any(), gomock.Any(), game.Board{}).Return(nil)

	st, err := svc.Open(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, st.ID)
	assert.Equal(t, game.PlayerA, st.Next)
	assert.Equal(t, 0, st.Moves)
	assert.Equal(t, game.InProgress(), st.Outcome)
}

func TestService_Open_StoreFailure(t *testing.T) {
	svc, repo, _ := newMockedService(t)
	storeErr := errors.New("store down")

	repo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(storeErr)

	_, err := svc.Open(context.Background())
	assert.ErrorIs(t, err, storeErr)
}

func TestService_Get_NotFound(t *testing.T) {
	svc, repo, _ := newMockedService(t)

	repo.EXPECT().FindByID(gomock.Any(), "missing").Return(game.Board{}, repository.ErrNotFound)

	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestService_Place(t *testing.T) {
	svc, repo, pub := newMockedService(t)
	ctx := context.Background()

	repo.EXPECT().Update(gomock.Any(), "t1", gomock.Any()).DoAndReturn(storedUpdate(game.Board{}))
	pub.EXPECT().Publish(gomock.Any(), eventOfType(events.TypeMarkPlaced)).DoAndReturn(
		func(_ context.Context, e events.Event) error {
			p, err := e.Table()
			require.NoError(t, err)
			assert.Equal(t, "t1", p.TableID)
			assert.Equal(t, game.CueGoodMove, p.Cue)
			require.NotNil(t, p.Slot)
			assert.Equal(t, 4, *p.Slot)
			return nil
		})

	st, err := svc.Place(ctx, "t1", 4)
	require.NoError(t, err)
	assert.Equal(t, game.PlayerA, st.Board[4])
	assert.Equal(t, game.PlayerB, st.Next)
	assert.Equal(t, 1, st.Moves)
	assert.Equal(t, game.CueGoodMove, st.Cue)
}

func TestService_Place_Rejected(t *testing.T) {
	board := game.Board{4: game.PlayerA}
	svc, repo, pub := newMockedService(t)

	repo.EXPECT().Update(gomock.Any(), "t1", gomock.Any()).DoAndReturn(storedUpdate(board))
	repo.EXPECT().FindByID(gomock.Any(), "t1").Return(board, nil)
	pub.EXPECT().Publish(gomock.Any(), eventOfType(events.TypeMoveRejected)).Return(nil)

	st, err := svc.Place(context.Background(), "t1", 4)

	var moveErr *game.MoveError
	require.ErrorAs(t, err, &moveErr)
	assert.Equal(t, game.ReasonOccupied, moveErr.Reason)
	assert.ErrorIs(t, err, game.ErrInvalidMove)
	assert.Equal(t, board, st.Board)
	assert.Equal(t, game.PlayerB, st.Next)
	assert.Equal(t, game.CueBadMove, st.Cue)
}

func TestService_Place_Winning(t *testing.T) {
	// X holds 0 and 1, O holds 3 and 4; X to move.
	board := game.Board{0: game.PlayerA, 1: game.PlayerA, 3: game.PlayerB, 4: game.PlayerB}
	svc, repo, pub := newMockedService(t)

	repo.EXPECT().Update(gomock.Any(), "t1", gomock.Any()).DoAndReturn(storedUpdate(board))
	pub.EXPECT().Publish(gomock.Any(), eventOfType(events.TypeGameOver)).Return(nil)

	st, err := svc.Place(context.Background(), "t1", 2)
	require.NoError(t, err)
	assert.Equal(t, game.Win(game.PlayerA, game.Lines[0]), st.Outcome)
	assert.Equal(t, game.CueWin, st.Cue)
	assert.Empty(t, st.Next)
	assert.Equal(t, "X wins!", st.Summary)
}

func TestService_Place_PublishFailureIsNotFatal(t *testing.T) {
	svc, repo, pub := newMockedService(t)

	repo.EXPECT().Update(gomock.Any(), "t1", gomock.Any()).DoAndReturn(storedUpdate(game.Board{}))
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("bus down"))

	st, err := svc.Place(context.Background(), "t1", 0)
	require.NoError(t, err)
	assert.Equal(t, game.PlayerA, st.Board[0])
}

func TestService_Reset(t *testing.T) {
	board := game.Board{0: game.PlayerA, 4: game.PlayerB}
	svc, repo, pub := newMockedService(t)

	repo.EXPECT().Update(gomock.Any(), "t1", gomock.Any()).DoAndReturn(storedUpdate(board))
	pub.EXPECT().Publish(gomock.Any(), eventOfType(events.TypeTableReset)).Return(nil)

	st, err := svc.Reset(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, game.Board{}, st.Board)
	assert.Equal(t, game.PlayerA, st.Next)
}

func TestService_Close(t *testing.T) {
	svc, repo, pub := newMockedService(t)

	repo.EXPECT().Delete(gomock.Any(), "t1").Return(nil)
	pub.EXPECT().Publish(gomock.Any(), eventOfType(events.TypeTableClosed)).Return(nil)

	require.NoError(t, svc.Close(context.Background(), "t1"))
}

func TestService_Close_NotFound(t *testing.T) {
	svc, repo, _ := newMockedService(t)

	// No table_closed event is expected: the publisher mock fails on any call.
	repo.EXPECT().Delete(gomock.Any(), "gone").Return(repository.ErrNotFound)

	assert.ErrorIs(t, svc.Close(context.Background(), "gone"), repository.ErrNotFound)
}

func TestService_FullGameOnSQLite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.SQLiteConnect(ctx, filepath.Join(t.TempDir(), "tables.db"))
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	broker := events.NewLocalBroker()
	feed, unsubscribe, err := broker.Subscribe(ctx)
	require.NoError(t, err)
	defer unsubscribe()

	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)
	svc := NewService(repository.NewSQLiteTableRepository(pool, time.Hour), broker, metrics)

	st, err := svc.Open(ctx)
	require.NoError(t, err)

	// Given: X takes the left column while O plays the middle column
	for _, slot := range []int{0, 1, 3, 4} {
		_, err := svc.Place(ctx, st.ID, slot)
		require.NoError(t, err)
	}
	final, err := svc.Place(ctx, st.ID, 6)
	require.NoError(t, err)
	assert.Equal(t, game.Win(game.PlayerA, game.Lines[3]), final.Outcome)

	// Then: further moves are refused with the game_over reason
	_, err = svc.Place(ctx, st.ID, 8)
	var moveErr *game.MoveError
	require.ErrorAs(t, err, &moveErr)
	assert.Equal(t, game.ReasonGameOver, moveErr.Reason)

	var types []string
	for len(types) < 6 {
		select {
		case e := <-feed:
			types = append(types, e.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for events, got %v", types)
		}
	}
	assert.Equal(t, []string{
		events.TypeMarkPlaced, events.TypeMarkPlaced, events.TypeMarkPlaced, events.TypeMarkPlaced,
		events.TypeGameOver, events.TypeMoveRejected,
	}, types)

	require.NoError(t, svc.Close(ctx, st.ID))
	_, err = svc.Get(ctx, st.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestService_ConcurrentCloseClosesOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.SQLiteConnect(ctx, filepath.Join(t.TempDir(), "tables.db"))
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	broker := events.NewLocalBroker()
	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)
	svc := NewService(repository.NewSQLiteTableRepository(pool, time.Hour), broker, metrics)

	st, err := svc.Open(ctx)
	require.NoError(t, err)

	feed, unsubscribe, err := broker.Subscribe(ctx)
	require.NoError(t, err)
	defer unsubscribe()

	const closers = 4
	var wg sync.WaitGroup
	errs := make(chan error, closers)
	for range closers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.Close(ctx, st.ID)
		}()
	}
	wg.Wait()
	close(errs)

	closed := 0
	for err := range errs {
		if err == nil {
			closed++
			continue
		}
		assert.ErrorIs(t, err, repository.ErrNotFound)
	}
	assert.Equal(t, 1, closed)

	select {
	case e := <-feed:
		assert.Equal(t, events.TypeTableClosed, e.Type)
	case <-time.After(time.Second):
		t.Fatal("no table_closed event")
	}
	select {
	case e := <-feed:
		t.Fatalf("unexpected second event %q", e.Type)
	case <-time.After(100 * time.Millisecond):
	}
}
