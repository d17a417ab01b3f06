package game

import "errors"

// Cue is the feedback a host plays when a slot is picked or a placement is
// attempted.
type Cue string

const (
	CueStartMove Cue = "start_move"
	CueGoodMove  Cue = "good_move"
	CueBadMove   Cue = "bad_move"
	CueWin       Cue = "win"
	CueTie       Cue = "tie"
)

// CueForSelect is the cue for picking a slot before placing on it. Nothing
// can be picked once the game is over.
func CueForSelect(o Outcome) Cue {
	if o.Terminal() {
		return ""
	}
	return CueStartMove
}

// CueFor maps the result of PlaceMark and the outcome that followed it to a cue.
func CueFor(err error, o Outcome) Cue {
	if errors.Is(err, ErrInvalidMove) {
		return CueBadMove
	}
	switch o.Status {
	case StatusWin:
		return CueWin
	case StatusDraw:
		return CueTie
	default:
		return CueGoodMove
	}
}

// Summary is the game-over banner for o, or "" while the game is running.
func Summary(o Outcome) string {
	switch o.Status {
	case StatusWin:
		return string(o.Winner) + " wins!"
	case StatusDraw:
		return "Tie game."
	default:
		return ""
	}
}

// Instructions is the how-to-play text shown on request.
func Instructions(version string) string {
	text := "How To Play\nPlace a piece on an open spot.\nFirst with three in a row wins."
	if version != "" {
		text += "\n\n" + version
	}
	return text
}
