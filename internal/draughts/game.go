package draughts

import "errors"

var (
	ErrGameOver         = errors.New("GAME_OVER: Game has already ended")
	ErrNotYourTurn      = errors.New("NOT_YOUR_TURN: It is not your turn")
	ErrInvalidSelection = errors.New("INVALID_SELECTION: No piece of yours on that square")
	ErrInvalidTarget    = errors.New("INVALID_DESTINATION: Destination square is not available")
	ErrMustContinue     = errors.New("MUST_CONTINUE: You must keep capturing with the same piece")
	ErrMandatoryCapture = errors.New("MANDATORY_CAPTURE: A capture is available and must be played")
	ErrIllegalMove      = errors.New("ILLEGAL_MOVE: That piece cannot move there")
)

// Result is the terminal outcome of a game. Winner is empty on a draw.
type Result struct {
	Winner Color  `json:"winner,omitempty"`
	Draw   bool   `json:"draw"`
	Reason string `json:"reason"`
}

type MoveRecord struct {
	Player   Color    `json:"player"`
	From     Square   `json:"from"`
	To       Square   `json:"to"`
	Captured []Square `json:"captured,omitempty"`
	Promoted bool     `json:"promoted"`
}

// Game is the authoritative state of one match: board, side to move, and
// the turn context (forced continuation piece, pieces taken so far this
// turn, no-progress counter). Not safe for concurrent use; the room
// serializes access.
type Game struct {
	Board            *Board       `json:"board"`
	Turn             Color        `json:"turn"`
	Forced           *Square      `json:"forced,omitempty"`
	CapturedThisTurn []Square     `json:"capturedThisTurn,omitempty"`
	NoProgressPlies  int          `json:"noProgressPlies"`
	Result           *Result      `json:"result,omitempty"`
	History          []MoveRecord `json:"history"`

	// NoProgressLimit plies without a capture draw the game. The kings
	// endgame (three or more kings against a lone king) draws at the
	// shorter KingsEndgameLimit instead.
	NoProgressLimit   int `json:"noProgressLimit"`
	KingsEndgameLimit int `json:"kingsEndgameLimit"`
}

func NewGame(size int) *Game {
	return &Game{
		Board:             NewBoard(size),
		Turn:              Light,
		NoProgressLimit:   40,
		KingsEndgameLimit: 10,
	}
}

// MoveResult describes an applied move.
type MoveResult struct {
	Capture     bool     `json:"capture"`
	Captured    []Square `json:"captured,omitempty"`
	MayContinue bool     `json:"mayContinue"`
	Promoted    bool     `json:"promoted"`
	TurnEnded   bool     `json:"turnEnded"`
}

// Move validates and applies a single step (one simple move or one or more
// jumps along a best sequence) for player. Validation is pure: the board is
// only touched once the move is accepted. Captured pieces stay on the board
// until the whole turn ends.
func (g *Game) Move(player Color, from, to Square) (*MoveResult, error) {
	if g.Result != nil {
		return nil, ErrGameOver
	}
	if player != g.Turn {
		return nil, ErrNotYourTurn
	}
	if !g.Board.InBounds(from) || g.Board.At(from).Empty() || g.Board.At(from).Color != player {
		return nil, ErrInvalidSelection
	}
	// The mover vacates from, so a capture circuit may land back on it.
	if !g.Board.InBounds(to) || !IsDarkSquare(to.Row, to.Col) || !isVacant(g.Board, to, from) {
		return nil, ErrInvalidTarget
	}
	if g.Forced != nil && from != *g.Forced {
		return nil, ErrMustContinue
	}

	best := g.bestSequences()
	if len(best) > 0 {
		seq, upTo, ok := matchSequence(best, from, to)
		if !ok {
			return nil, ErrMandatoryCapture
		}
		return g.applyCapture(from, to, seq, upTo), nil
	}

	if err := g.checkSimpleMove(from, to); err != nil {
		return nil, err
	}
	return g.applySimpleMove(from, to), nil
}

// bestSequences respects a pending forced continuation: mid-turn, only the
// forced piece's remaining chains count; otherwise majority law runs over
// every piece of the side to move.
func (g *Game) bestSequences() []CaptureSequence {
	if g.Forced == nil {
		return BestSequences(g.Board, g.Turn, nil)
	}

	cell := g.Board.At(*g.Forced)
	all := SequencesForPiece(g.Board, *g.Forced, g.Turn, cell.Rank, g.CapturedThisTurn)
	best := 0
	for _, seq := range all {
		if seq.Jumps() > best {
			best = seq.Jumps()
		}
	}
	var longest []CaptureSequence
	for _, seq := range all {
		if seq.Jumps() == best {
			longest = append(longest, seq)
		}
	}
	return longest
}

// matchSequence finds a best sequence whose origin is from and that lands
// on to, preferring the shallowest landing so a single submitted jump is
// never over-credited when two sequences share a prefix.
func matchSequence(best []CaptureSequence, from, to Square) (CaptureSequence, int, bool) {
	found := CaptureSequence{}
	foundAt := -1
	for _, seq := range best {
		if seq.Origin() != from {
			continue
		}
		for i := 1; i < len(seq.Path); i++ {
			if seq.Path[i] != to {
				continue
			}
			if foundAt == -1 || i < foundAt {
				found, foundAt = seq, i
			}
			break
		}
	}
	return found, foundAt, foundAt != -1
}

func (g *Game) applyCapture(from, to Square, seq CaptureSequence, upTo int) *MoveResult {
	cell := g.Board.At(from)
	g.Board.Clear(from)
	g.Board.Set(to, cell)

	taken := seq.Captured[:upTo]
	g.CapturedThisTurn = append(g.CapturedThisTurn, taken...)

	res := &MoveResult{
		Capture:     true,
		Captured:    append([]Square(nil), taken...),
		MayContinue: upTo < len(seq.Path)-1,
	}
	g.History = append(g.History, MoveRecord{
		Player:   g.Turn,
		From:     from,
		To:       to,
		Captured: res.Captured,
	})

	if res.MayContinue {
		forced := to
		g.Forced = &forced
		return res
	}

	g.endTurn(to, res)
	return res
}

func (g *Game) applySimpleMove(from, to Square) *MoveResult {
	cell := g.Board.At(from)
	g.Board.Clear(from)
	g.Board.Set(to, cell)

	res := &MoveResult{}
	g.History = append(g.History, MoveRecord{Player: g.Turn, From: from, To: to})
	g.endTurn(to, res)
	return res
}

// endTurn removes the turn's captured pieces from the board, applies
// promotion, resets the turn context, switches the side to move, and runs
// the termination checks.
func (g *Game) endTurn(landing Square, res *MoveResult) {
	res.TurnEnded = true

	for _, sq := range g.CapturedThisTurn {
		g.Board.Clear(sq)
	}
	captured := len(g.CapturedThisTurn) > 0 || res.Capture
	g.CapturedThisTurn = nil
	g.Forced = nil

	cell := g.Board.At(landing)
	if cell.Rank == Man && landing.Row == g.Board.BackRank(cell.Color) {
		cell.Rank = King
		g.Board.Set(landing, cell)
		res.Promoted = true
		g.History[len(g.History)-1].Promoted = true
	}

	if captured {
		g.NoProgressPlies = 0
	} else {
		g.NoProgressPlies++
	}

	mover := g.Turn
	g.Turn = g.Turn.Opponent()
	g.checkTermination(mover)
}

// checkTermination runs after every completed turn: no pieces or no legal
// move loses for the side now to move; the no-progress thresholds draw.
func (g *Game) checkTermination(mover Color) {
	toMove := g.Turn

	if g.Board.Count(toMove) == 0 {
		g.Result = &Result{Winner: mover, Reason: "no pieces left"}
		return
	}
	if !g.HasAnyMove(toMove) {
		g.Result = &Result{Winner: mover, Reason: "blocked"}
		return
	}

	limit := g.NoProgressLimit
	if g.kingsEndgame() && g.KingsEndgameLimit < limit {
		limit = g.KingsEndgameLimit
	}
	if g.NoProgressPlies >= limit {
		g.Result = &Result{Draw: true, Reason: "no progress"}
	}
}

// kingsEndgame reports the forced-draw endgame: only kings remain and one
// side has a lone king against three or more.
func (g *Game) kingsEndgame() bool {
	counts := map[Color]int{}
	for r := 0; r < g.Board.Size; r++ {
		for c := 0; c < g.Board.Size; c++ {
			cell := g.Board.Grid[r][c]
			if cell.Empty() {
				continue
			}
			if cell.Rank != King {
				return false
			}
			counts[cell.Color]++
		}
	}
	return (counts[Light] == 1 && counts[Dark] >= 3) ||
		(counts[Dark] == 1 && counts[Light] >= 3)
}

func (g *Game) checkSimpleMove(from, to Square) error {
	cell := g.Board.At(from)

	if cell.Rank == Man {
		if to.Row != from.Row+cell.Color.ForwardDir() || abs(to.Col-from.Col) != 1 {
			return ErrIllegalMove
		}
		return nil
	}

	if !sameDiagonal(from, to) {
		return ErrIllegalMove
	}
	for _, sq := range DiagonalSteps(from, to) {
		if !g.Board.At(sq).Empty() {
			return ErrIllegalMove
		}
	}
	return nil
}

// HasAnyMove reports whether color has at least one legal move: any capture
// or any simple step.
func (g *Game) HasAnyMove(color Color) bool {
	if len(BestSequences(g.Board, color, nil)) > 0 {
		return true
	}
	for _, from := range g.Board.Pieces(color) {
		cell := g.Board.At(from)
		for _, d := range directions {
			if cell.Rank == Man && d.Row != color.ForwardDir() {
				continue
			}
			to := Square{from.Row + d.Row, from.Col + d.Col}
			if g.Board.InBounds(to) && g.Board.At(to).Empty() {
				return true
			}
		}
	}
	return false
}

// LegalDestinations lists every square the piece on from may move to under
// the current turn context. Used for client highlighting; empty when the
// piece has no legal move.
func (g *Game) LegalDestinations(from Square) []Square {
	if g.Result != nil || !g.Board.InBounds(from) {
		return nil
	}
	cell := g.Board.At(from)
	if cell.Empty() || cell.Color != g.Turn {
		return nil
	}
	if g.Forced != nil && from != *g.Forced {
		return nil
	}

	best := g.bestSequences()
	if len(best) > 0 {
		seen := make(map[Square]bool)
		var dests []Square
		for _, seq := range best {
			if seq.Origin() != from {
				continue
			}
			for _, sq := range seq.Path[1:] {
				if !seen[sq] {
					seen[sq] = true
					dests = append(dests, sq)
				}
			}
		}
		return dests
	}

	var dests []Square
	for _, d := range directions {
		if cell.Rank == Man {
			if d.Row != cell.Color.ForwardDir() {
				continue
			}
			to := Square{from.Row + d.Row, from.Col + d.Col}
			if g.Board.InBounds(to) && g.Board.At(to).Empty() {
				dests = append(dests, to)
			}
			continue
		}
		to := Square{from.Row + d.Row, from.Col + d.Col}
		for g.Board.InBounds(to) && g.Board.At(to).Empty() {
			dests = append(dests, to)
			to = Square{to.Row + d.Row, to.Col + d.Col}
		}
	}
	return dests
}

// MandatoryOrigins is the set of squares bearing a mandatory capture for
// the side to move, honoring a pending forced continuation.
func (g *Game) MandatoryOrigins() []Square {
	if g.Result != nil {
		return nil
	}
	if g.Forced != nil {
		if len(g.bestSequences()) > 0 {
			return []Square{*g.Forced}
		}
		return nil
	}
	return CaptureOrigins(g.Board, g.Turn)
}
