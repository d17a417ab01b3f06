package table

import (
	"ctchen222/passplay/internal/game"
	"fmt"
)

// State is a table as presented to clients.
type State struct {
	ID      string       `json:"id"`
	Board   game.Board   `json:"board"`
	Next    game.Mark    `json:"next,omitempty"`
	Moves   int          `json:"moves"`
	Outcome game.Outcome `json:"outcome"`
	Summary string       `json:"summary,omitempty"`
	Cue     game.Cue     `json:"cue,omitempty"`
}

// NewState derives the presented state from a stored board. Next is left
// empty once the game is over.
func NewState(id string, board game.Board, cue game.Cue) (State, error) {
	engine, err := game.Restore(board)
	if err != nil {
		return State{}, fmt.Errorf("table %s: %w", id, err)
	}

	outcome := engine.EvaluateOutcome()
	st := State{
		ID:      id,
		Board:   engine.Snapshot(),
		Moves:   engine.Moves(),
		Outcome: outcome,
		Summary: game.Summary(outcome),
		Cue:     cue,
	}
	if !outcome.Terminal() {
		st.Next = engine.CurrentTurn()
	}
	return st, nil
}
