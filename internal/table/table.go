package table

import (
	"context"
	"ctchen222/passplay/internal/events"
	"ctchen222/passplay/internal/game"
	"ctchen222/passplay/internal/repository"
	"ctchen222/passplay/internal/telemetry"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("table")

// Service runs pass-and-play tables. Every change to a table goes through the
// repository's Update, which serializes access to the table's engine.
type Service struct {
	repo      repository.TableRepository
	publisher events.Publisher
	metrics   *telemetry.Metrics
}

// NewService creates a new table Service.
func NewService(repo repository.TableRepository, publisher events.Publisher, metrics *telemetry.Metrics) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		metrics:   metrics,
	}
}

// Open starts a new table with an empty board.
func (s *Service) Open(ctx context.Context) (State, error) {
	ctx, span := tracer.Start(ctx, "table.Open")
	defer span.End()

	id := uuid.New().String()
	span.SetAttributes(attribute.String("table.id", id))

	board := game.NewEngine().Snapshot()
	if err := s.repo.Create(ctx, id, board); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create table")
		return State{}, err
	}
	s.metrics.RecordTableOpened(ctx)
	slog.InfoContext(ctx, "Table opened", "table.id", id)

	return NewState(id, board, "")
}

// Get returns the current state of a table.
func (s *Service) Get(ctx context.Context, id string) (State, error) {
	ctx, span := tracer.Start(ctx, "table.Get", trace.WithAttributes(attribute.String("table.id", id)))
	defer span.End()

	board, err := s.repo.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Could not find table")
		return State{}, err
	}
	return NewState(id, board, "")
}

// Place puts the current turn's mark on slot. When the move is rejected the
// returned error wraps game.ErrInvalidMove and the returned State is the
// unchanged table carrying the bad-move cue.
func (s *Service) Place(ctx context.Context, id string, slot int) (State, error) {
	ctx, span := tracer.Start(ctx, "table.Place", trace.WithAttributes(
		attribute.String("table.id", id),
		attribute.Int("move.slot", slot),
	))
	defer span.End()

	board, err := s.repo.Update(ctx, id, func(e *game.Engine) error {
		return e.PlaceMark(slot)
	})

	var moveErr *game.MoveError
	if errors.As(err, &moveErr) {
		span.SetAttributes(attribute.Bool("move.valid", false), attribute.String("move.reason", string(moveErr.Reason)))
		slog.WarnContext(ctx, "Invalid move", "table.id", id, "move.slot", slot, "move.reason", moveErr.Reason)
		s.metrics.RecordPlacement(ctx, moveErr.Reason)
		return s.rejected(ctx, id, slot, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to place mark")
		return State{}, err
	}
	span.SetAttributes(attribute.Bool("move.valid", true))

	outcome := game.Evaluate(board)
	st, err := NewState(id, board, game.CueFor(nil, outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Stored board is invalid")
		return State{}, err
	}
	s.metrics.RecordPlacement(ctx, "")

	eventType := events.TypeMarkPlaced
	if outcome.Terminal() {
		eventType = events.TypeGameOver
		s.metrics.RecordGameFinished(ctx, outcome)
		slog.InfoContext(ctx, "Game over", "table.id", id, "outcome", outcome.Status, "winner", outcome.Winner)
	}
	s.publish(ctx, eventType, st, &slot)

	return st, nil
}

func (s *Service) rejected(ctx context.Context, id string, slot int, moveErr error) (State, error) {
	board, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return State{}, errors.Join(moveErr, err)
	}
	st, err := NewState(id, board, game.CueBadMove)
	if err != nil {
		return State{}, errors.Join(moveErr, err)
	}
	s.publish(ctx, events.TypeMoveRejected, st, &slot)
	return st, moveErr
}

// Reset clears the board of a table and hands the first turn back to PlayerA.
func (s *Service) Reset(ctx context.Context, id string) (State, error) {
	ctx, span := tracer.Start(ctx, "table.Reset", trace.WithAttributes(attribute.String("table.id", id)))
	defer span.End()

	board, err := s.repo.Update(ctx, id, func(e *game.Engine) error {
		e.Reset()
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to reset table")
		return State{}, err
	}

	st, err := NewState(id, board, "")
	if err != nil {
		return State{}, err
	}
	slog.InfoContext(ctx, "Table reset", "table.id", id)
	s.publish(ctx, events.TypeTableReset, st, nil)
	return st, nil
}

// Close discards a table. Only the call that actually removes it publishes
// table_closed; the others get repository.ErrNotFound.
func (s *Service) Close(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "table.Close", trace.WithAttributes(attribute.String("table.id", id)))
	defer span.End()

	if err := s.repo.Delete(ctx, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to delete table")
		return err
	}

	slog.InfoContext(ctx, "Table closed", "table.id", id)
	s.publish(ctx, events.TypeTableClosed, State{ID: id}, nil)
	return nil
}

// publish notifies watchers. A failed publish is logged; the table change it
// reports has already been stored.
func (s *Service) publish(ctx context.Context, eventType string, st State, slot *int) {
	event, err := events.NewEvent(eventType, events.TablePayload{
		TableID: st.ID,
		Board:   st.Board,
		Next:    st.Next,
		Outcome: st.Outcome,
		Cue:     st.Cue,
		Slot:    slot,
	})
	if err == nil {
		err = s.publisher.Publish(ctx, event)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to publish table event", "table.id", st.ID, "event.type", eventType, "error", err)
		trace.SpanFromContext(ctx).RecordError(err)
	}
}
