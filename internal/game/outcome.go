package game

// Line is three slot indices that win when they share a mark.
type Line [3]int

// Lines is checked in this order: rows top to bottom, columns left to right,
// then the top-left and bottom-left diagonals. The first complete line is the
// one reported.
var Lines = [8]Line{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{6, 4, 2},
}

// Status is the kind of an Outcome.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusWin        Status = "win"
	StatusDraw       Status = "draw"
)

// Outcome is InProgress, Win or Draw. Winner and Line are only set for Win.
type Outcome struct {
	Status Status `json:"status"`
	Winner Mark   `json:"winner,omitempty"`
	Line   *Line  `json:"line,omitempty"`
}

// InProgress is the outcome of a board with no line and an empty slot.
func InProgress() Outcome {
	return Outcome{Status: StatusInProgress}
}

// Win is the outcome of a board where player completed line.
func Win(player Mark, line Line) Outcome {
	return Outcome{Status: StatusWin, Winner: player, Line: &line}
}

// Draw is the outcome of a full board with no line.
func Draw() Outcome {
	return Outcome{Status: StatusDraw}
}

// Terminal reports whether no further placement is allowed.
func (o Outcome) Terminal() bool {
	return o.Status == StatusWin || o.Status == StatusDraw
}

// Evaluate classifies b. A complete line wins over a full board.
func Evaluate(b Board) Outcome {
	for _, line := range Lines {
		m := b[line[0]]
		if m != Empty && m == b[line[1]] && m == b[line[2]] {
			return Win(m, line)
		}
	}

	for _, m := range b {
		if m == Empty {
			return InProgress()
		}
	}

	return Draw()
}
