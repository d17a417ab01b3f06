package telemetry

import (
	"context"
	"ctchen222/passplay/internal/game"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records game counters on the global meter provider.
type Metrics struct {
	placements    metric.Int64Counter
	gamesFinished metric.Int64Counter
	tablesOpened  metric.Int64Counter
}

// NewMetrics creates the game instruments. Call it after InitOtel so the
// instruments bind to the configured provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("ctchen222/passplay")

	placements, err := meter.Int64Counter("tictactoe.placements",
		metric.WithDescription("Placement attempts, by result and rejection reason."))
	if err != nil {
		return nil, err
	}
	gamesFinished, err := meter.Int64Counter("tictactoe.games_finished",
		metric.WithDescription("Games that reached a win or a draw."))
	if err != nil {
		return nil, err
	}
	tablesOpened, err := meter.Int64Counter("tictactoe.tables_opened",
		metric.WithDescription("Tables opened."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		placements:    placements,
		gamesFinished: gamesFinished,
		tablesOpened:  tablesOpened,
	}, nil
}

// RecordPlacement counts an accepted placement (reason empty) or a rejected one.
func (m *Metrics) RecordPlacement(ctx context.Context, reason game.Reason) {
	result := "accepted"
	if reason != "" {
		result = "rejected"
	}
	m.placements.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("reason", string(reason)),
	))
}

// RecordGameFinished counts a game that reached outcome o.
func (m *Metrics) RecordGameFinished(ctx context.Context, o game.Outcome) {
	m.gamesFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(o.Status)),
		attribute.String("winner", string(o.Winner)),
	))
}

// RecordTableOpened counts a new table.
func (m *Metrics) RecordTableOpened(ctx context.Context) {
	m.tablesOpened.Add(ctx, 1)
}
