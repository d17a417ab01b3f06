package game

import (
	"errors"
	"fmt"
)

// Mark is the value held by a slot: empty, or one of the two players' symbols.
type Mark string

const (
	Empty   Mark = ""
	PlayerA Mark = "X" // always moves first
	PlayerB Mark = "O"
)

// Board boundaries
const (
	BoardSize = 9
	SlotMin   = 0
	SlotMax   = BoardSize - 1
)

// Board is the row-major 3x3 grid, slots 0-8.
type Board [BoardSize]Mark

// Opponent returns the other player's mark. Empty has no opponent.
func (m Mark) Opponent() Mark {
	switch m {
	case PlayerA:
		return PlayerB
	case PlayerB:
		return PlayerA
	default:
		return Empty
	}
}

var (
	// ErrInvalidMove is the single error kind returned by PlaceMark.
	ErrInvalidMove = errors.New("invalid move")
	// ErrInvalidBoard is returned by Restore for snapshots no game could produce.
	ErrInvalidBoard = errors.New("invalid board")
)

// Reason says which rule a rejected placement broke.
type Reason string

const (
	ReasonOutOfRange Reason = "out_of_range"
	ReasonOccupied   Reason = "occupied"
	ReasonGameOver   Reason = "game_over"
)

// MoveError is the concrete InvalidMove value. errors.Is(err, ErrInvalidMove)
// holds for every reason.
type MoveError struct {
	Slot   int
	Reason Reason
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("invalid move at slot %d: %s", e.Slot, e.Reason)
}

func (e *MoveError) Unwrap() error {
	return ErrInvalidMove
}

// Engine owns one game's board. It is not safe for concurrent use; callers
// serialize access per game.
type Engine struct {
	board Board
}

// NewEngine returns an engine with an empty board and PlayerA to move.
func NewEngine() *Engine {
	return &Engine{}
}

// Restore rebuilds an engine from a stored snapshot.
func Restore(b Board) (*Engine, error) {
	var a, o int
	for i, m := range b {
		switch m {
		case PlayerA:
			a++
		case PlayerB:
			o++
		case Empty:
		default:
			return nil, fmt.Errorf("%w: unknown mark %q at slot %d", ErrInvalidBoard, m, i)
		}
	}
	if a != o && a != o+1 {
		return nil, fmt.Errorf("%w: %d %s marks against %d %s marks", ErrInvalidBoard, a, PlayerA, o, PlayerB)
	}
	return &Engine{board: b}, nil
}

// Reset clears every slot. It is idempotent.
func (e *Engine) Reset() {
	e.board = Board{}
}

// PlaceMark puts the current turn's mark on slot. The board is untouched when
// it returns an error.
func (e *Engine) PlaceMark(slot int) error {
	if slot < SlotMin || slot > SlotMax {
		return &MoveError{Slot: slot, Reason: ReasonOutOfRange}
	}
	if e.EvaluateOutcome().Terminal() {
		return &MoveError{Slot: slot, Reason: ReasonGameOver}
	}
	if e.board[slot] != Empty {
		return &MoveError{Slot: slot, Reason: ReasonOccupied}
	}

	e.board[slot] = e.CurrentTurn()
	return nil
}

// CurrentTurn returns whose mark goes down next. The value is meaningless
// once the outcome is terminal.
func (e *Engine) CurrentTurn() Mark {
	a, o := e.counts()
	if a == o {
		return PlayerA
	}
	return PlayerB
}

// Moves returns the number of accepted placements.
func (e *Engine) Moves() int {
	a, o := e.counts()
	return a + o
}

// Snapshot returns a copy of the board.
func (e *Engine) Snapshot() Board {
	return e.board
}

// EvaluateOutcome classifies the current board.
func (e *Engine) EvaluateOutcome() Outcome {
	return Evaluate(e.board)
}

func (e *Engine) counts() (a, o int) {
	for _, m := range e.board {
		switch m {
		case PlayerA:
			a++
		case PlayerB:
			o++
		}
	}
	return a, o
}
