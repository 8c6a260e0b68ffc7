package draughts

type Color string

const (
	Light Color = "light"
	Dark  Color = "dark"
)

func (c Color) Opponent() Color {
	if c == Light {
		return Dark
	}
	return Light
}

// ForwardDir is the row direction men of this color advance in.
// Light starts at the top of the grid and moves toward higher rows.
func (c Color) ForwardDir() int {
	if c == Light {
		return 1
	}
	return -1
}

type Rank string

const (
	Man  Rank = "man"
	King Rank = "king"
)

type Square struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Cell is one board square. The zero value is an empty square.
type Cell struct {
	Color Color `json:"color,omitempty"`
	Rank  Rank  `json:"rank,omitempty"`
}

func (c Cell) Empty() bool {
	return c.Color == ""
}

// directions are the four diagonal steps.
var directions = [4]Square{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}

type Board struct {
	Size int      `json:"size"`
	Grid [][]Cell `json:"grid"`
}

// NewBoard returns a board of the given size (8 or 10) with the opening
// position: men on the dark squares of the first rows of each side,
// Light at the top, Dark at the bottom.
func NewBoard(size int) *Board {
	b := emptyBoard(size)

	rows := size/2 - 1
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			if !IsDarkSquare(r, c) {
				continue
			}
			if r < rows {
				b.Grid[r][c] = Cell{Color: Light, Rank: Man}
			} else if r >= size-rows {
				b.Grid[r][c] = Cell{Color: Dark, Rank: Man}
			}
		}
	}

	return b
}

func emptyBoard(size int) *Board {
	grid := make([][]Cell, size)
	for i := range grid {
		grid[i] = make([]Cell, size)
	}
	return &Board{Size: size, Grid: grid}
}

// EmptyBoard returns a board of the given size with no pieces.
// Used to set up positions directly.
func EmptyBoard(size int) *Board {
	return emptyBoard(size)
}

func IsDarkSquare(r, c int) bool {
	return (r+c)%2 == 1
}

func (b *Board) InBounds(sq Square) bool {
	return sq.Row >= 0 && sq.Row < b.Size && sq.Col >= 0 && sq.Col < b.Size
}

func (b *Board) At(sq Square) Cell {
	return b.Grid[sq.Row][sq.Col]
}

func (b *Board) Set(sq Square, cell Cell) {
	b.Grid[sq.Row][sq.Col] = cell
}

func (b *Board) Clear(sq Square) {
	b.Grid[sq.Row][sq.Col] = Cell{}
}

func (b *Board) Clone() *Board {
	clone := emptyBoard(b.Size)
	for r := range b.Grid {
		copy(clone.Grid[r], b.Grid[r])
	}
	return clone
}

// Pieces returns the squares occupied by the given color.
func (b *Board) Pieces(color Color) []Square {
	var squares []Square
	for r := 0; r < b.Size; r++ {
		for c := 0; c < b.Size; c++ {
			if cell := b.Grid[r][c]; !cell.Empty() && cell.Color == color {
				squares = append(squares, Square{r, c})
			}
		}
	}
	return squares
}

func (b *Board) Count(color Color) int {
	return len(b.Pieces(color))
}

// BackRank is the promotion row for the given color.
func (b *Board) BackRank(color Color) int {
	if color == Light {
		return b.Size - 1
	}
	return 0
}

// sameDiagonal reports whether two distinct squares share a diagonal.
func sameDiagonal(from, to Square) bool {
	dr := to.Row - from.Row
	dc := to.Col - from.Col
	return dr != 0 && abs(dr) == abs(dc)
}

// step returns the unit diagonal direction from one square toward another.
// Both squares must share a diagonal.
func step(from, to Square) Square {
	return Square{sign(to.Row - from.Row), sign(to.Col - from.Col)}
}

// DiagonalSteps lists the squares strictly between two squares on a shared
// diagonal, nearest first. Returns nil if the squares do not share one.
func DiagonalSteps(from, to Square) []Square {
	if !sameDiagonal(from, to) {
		return nil
	}
	d := step(from, to)
	var between []Square
	for sq := (Square{from.Row + d.Row, from.Col + d.Col}); sq != to; sq = (Square{sq.Row + d.Row, sq.Col + d.Col}) {
		between = append(between, sq)
	}
	return between
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
