// Package terminal is a pass-and-play tic-tac-toe screen for one device.
package terminal

import (
	"ctchen222/passplay/internal/game"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gdamore/tcell/v2"
)

const (
	gridLeft = 2
	gridTop  = 2
	cellW    = 4 // three columns of content plus a separator
	cellH    = 2
)

var (
	styleDefault = tcell.StyleDefault
	styleHint    = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleCursor  = tcell.StyleDefault.Reverse(true)
	styleWinner  = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleError   = tcell.StyleDefault.Foreground(tcell.ColorRed)
)

// App owns one engine and draws it on a tcell screen. It is driven from a
// single event loop, so the engine needs no locking.
type App struct {
	screen  tcell.Screen
	engine  *game.Engine
	version string

	cursor   int
	showHelp bool
	cue      game.Cue
	message  string

	bell func()
}

// New creates an App drawing on screen, which must already be initialized.
func New(screen tcell.Screen, version string) *App {
	a := &App{
		screen:  screen,
		engine:  game.NewEngine(),
		version: version,
		cursor:  4,
	}
	a.bell = func() { _ = a.screen.Beep() }
	return a
}

// Run draws the board and handles input until the player quits or the
// screen is finalized.
func (a *App) Run() error {
	for {
		a.Draw()
		switch ev := a.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventResize:
			a.screen.Sync()
		case *tcell.EventError:
			return fmt.Errorf("terminal: %w", ev)
		case *tcell.EventKey:
			if a.HandleKey(ev) {
				return nil
			}
		}
	}
}

// HandleKey applies one key press and reports whether the player quit.
func (a *App) HandleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyUp:
		a.move(-1, 0)
	case tcell.KeyDown:
		a.move(1, 0)
	case tcell.KeyLeft:
		a.move(0, -1)
	case tcell.KeyRight:
		a.move(0, 1)
	case tcell.KeyEnter:
		if a.engine.EvaluateOutcome().Terminal() {
			a.reset()
		} else {
			a.place()
		}
	case tcell.KeyRune:
		return a.handleRune(ev.Rune())
	}
	return false
}

func (a *App) handleRune(r rune) bool {
	switch {
	case r == 'q':
		return true
	case r == '?':
		a.showHelp = !a.showHelp
	case r == 'n':
		a.reset()
	case r == ' ':
		a.place()
	case r == 'k':
		a.move(-1, 0)
	case r == 'j':
		a.move(1, 0)
	case r == 'h':
		a.move(0, -1)
	case r == 'l':
		a.move(0, 1)
	case r >= '1' && r <= '9':
		a.cursor = int(r - '1')
		a.selected()
	}
	return false
}

// move shifts the cursor, staying inside the grid.
func (a *App) move(dRow, dCol int) {
	row, col := a.cursor/3+dRow, a.cursor%3+dCol
	if row < 0 || row > 2 || col < 0 || col > 2 {
		return
	}
	a.cursor = row*3 + col
	a.selected()
}

// selected plays the pick-up cue for the slot under the cursor.
func (a *App) selected() {
	a.cue = game.CueForSelect(a.engine.EvaluateOutcome())
	a.message = ""
}

func (a *App) place() {
	err := a.engine.PlaceMark(a.cursor)
	outcome := a.engine.EvaluateOutcome()
	a.cue = game.CueFor(err, outcome)
	a.message = ""

	var moveErr *game.MoveError
	if errors.As(err, &moveErr) {
		a.message = describe(moveErr)
		slog.Debug("Invalid move", "move.slot", moveErr.Slot, "move.reason", moveErr.Reason)
		a.bell()
		return
	}
	slog.Debug("Mark placed", "move.slot", a.cursor, "cue", a.cue)
	if outcome.Terminal() {
		slog.Info("Game over", "outcome", outcome.Status, "winner", outcome.Winner)
	}
}

func (a *App) reset() {
	a.engine.Reset()
	a.cursor = 4
	a.cue = ""
	a.message = ""
	slog.Debug("New game")
}

func describe(err *game.MoveError) string {
	switch err.Reason {
	case game.ReasonOccupied:
		return fmt.Sprintf("Slot %d is taken.", err.Slot+1)
	case game.ReasonGameOver:
		return "The game is over."
	default:
		return "No such slot."
	}
}

// Draw renders the whole screen.
func (a *App) Draw() {
	s := a.screen
	s.Clear()

	board := a.engine.Snapshot()
	outcome := a.engine.EvaluateOutcome()

	winning := map[int]bool{}
	if outcome.Line != nil {
		for _, slot := range outcome.Line {
			winning[slot] = true
		}
	}

	drawText(s, gridLeft, 0, styleDefault.Bold(true), "Tic-Tac-Toe")

	for slot := 0; slot < game.BoardSize; slot++ {
		row, col := slot/3, slot%3
		x, y := gridLeft+col*cellW, gridTop+row*cellH

		label, style := string(board[slot]), styleDefault
		if board[slot] == game.Empty {
			label, style = fmt.Sprint(slot+1), styleHint
		}
		if winning[slot] {
			style = styleWinner
		}
		if slot == a.cursor && !outcome.Terminal() {
			style = style.Reverse(true)
		}
		drawText(s, x, y, style, " "+label+" ")

		if col < 2 {
			s.SetContent(x+3, y, tcell.RuneVLine, nil, styleDefault)
		}
		if row < 2 {
			drawText(s, x, y+1, styleDefault, strings.Repeat(string(tcell.RuneHLine), 3))
			if col < 2 {
				s.SetContent(x+3, y+1, tcell.RunePlus, nil, styleDefault)
			}
		}
	}

	statusY := gridTop + 3*cellH
	if outcome.Terminal() {
		drawText(s, gridLeft, statusY, styleWinner, game.Summary(outcome)+" Press Enter or n for a new game.")
	} else {
		drawText(s, gridLeft, statusY, styleDefault, fmt.Sprintf("%s to move.", a.engine.CurrentTurn()))
	}
	if a.message != "" {
		drawText(s, gridLeft, statusY+1, styleError, a.message)
	}
	drawText(s, gridLeft, statusY+3, styleHint, "arrows/hjkl move, 1-9 jump, enter place, ? help, q quit")

	if a.showHelp {
		for i, line := range strings.Split(game.Instructions(a.version), "\n") {
			drawText(s, gridLeft, statusY+5+i, styleDefault, line)
		}
	}

	s.Show()
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	for i, r := range []rune(text) {
		s.SetContent(x+i, y, r, nil, style)
	}
}
