package draughts

// CaptureSequence is one maximal chain of jumps for a single piece.
// Path holds the origin followed by every landing square; Captured holds
// the square of the piece taken by each jump, in order. Immutable once
// returned from the search.
type CaptureSequence struct {
	Path     []Square `json:"path"`
	Captured []Square `json:"captured"`
}

func (s CaptureSequence) Jumps() int {
	return len(s.Captured)
}

func (s CaptureSequence) Origin() Square {
	return s.Path[0]
}

func (s CaptureSequence) Landing() Square {
	return s.Path[len(s.Path)-1]
}

// SequencesForPiece enumerates every maximal capture sequence available to
// the piece on origin. Pieces listed in captured were already taken earlier
// this turn: they stay on the board as obstacles and cannot be taken twice.
func SequencesForPiece(b *Board, origin Square, color Color, rank Rank, captured []Square) []CaptureSequence {
	set := make(map[Square]bool, len(captured)+4)
	for _, sq := range captured {
		set[sq] = true
	}
	return searchCaptures(b, origin, origin, color, rank, set)
}

// searchCaptures runs the depth-first jump search from cur. pieceOrigin is
// the square the moving piece started the turn on; the board still shows it
// occupied, but the piece has vacated it, so it counts as empty (a sequence
// may even land back on it).
func searchCaptures(b *Board, pieceOrigin, cur Square, color Color, rank Rank, captured map[Square]bool) []CaptureSequence {
	var sequences []CaptureSequence

	for _, d := range directions {
		if rank == Man {
			sequences = append(sequences, manJumps(b, pieceOrigin, cur, d, color, captured)...)
		} else {
			sequences = append(sequences, kingJumps(b, pieceOrigin, cur, d, color, captured)...)
		}
	}

	return sequences
}

// manJumps handles one direction for a man: the adjacent square must hold a
// fresh enemy piece and the square beyond it must be vacant. Men capture in
// all four diagonal directions.
func manJumps(b *Board, pieceOrigin, cur, d Square, color Color, captured map[Square]bool) []CaptureSequence {
	mid := Square{cur.Row + d.Row, cur.Col + d.Col}
	land := Square{cur.Row + 2*d.Row, cur.Col + 2*d.Col}
	if !b.InBounds(land) {
		return nil
	}
	if !isEnemyPiece(b, mid, pieceOrigin, color) || captured[mid] {
		return nil
	}
	if !isVacant(b, land, pieceOrigin) {
		return nil
	}

	return branch(b, pieceOrigin, cur, land, mid, color, Man, captured)
}

// kingJumps handles one direction for a king. The king slides until the
// first occupied square: an own piece or a piece already captured this turn
// blocks; a fresh enemy piece with at least one vacant square beyond it may
// be jumped, and every vacant square beyond it, up to the next occupied
// square, is a separate landing branch.
func kingJumps(b *Board, pieceOrigin, cur, d Square, color Color, captured map[Square]bool) []CaptureSequence {
	target := Square{cur.Row + d.Row, cur.Col + d.Col}
	for b.InBounds(target) && isVacant(b, target, pieceOrigin) {
		target = Square{target.Row + d.Row, target.Col + d.Col}
	}
	if !b.InBounds(target) {
		return nil
	}
	if !isEnemyPiece(b, target, pieceOrigin, color) || captured[target] {
		return nil
	}

	var sequences []CaptureSequence
	land := Square{target.Row + d.Row, target.Col + d.Col}
	for b.InBounds(land) && isVacant(b, land, pieceOrigin) {
		sequences = append(sequences, branch(b, pieceOrigin, cur, land, target, color, King, captured)...)
		land = Square{land.Row + d.Row, land.Col + d.Col}
	}
	return sequences
}

// branch records the jump over taken and recurses from land. A branch with
// no deeper captures terminates at land; deeper branches are prefixed with
// the current position.
func branch(b *Board, pieceOrigin, cur, land, taken Square, color Color, rank Rank, captured map[Square]bool) []CaptureSequence {
	captured[taken] = true
	deeper := searchCaptures(b, pieceOrigin, land, color, rank, captured)
	delete(captured, taken)

	if len(deeper) == 0 {
		return []CaptureSequence{{
			Path:     []Square{cur, land},
			Captured: []Square{taken},
		}}
	}

	sequences := make([]CaptureSequence, 0, len(deeper))
	for _, seq := range deeper {
		path := append([]Square{cur}, seq.Path...)
		caps := append([]Square{taken}, seq.Captured...)
		sequences = append(sequences, CaptureSequence{Path: path, Captured: caps})
	}
	return sequences
}

// BestSequences scans every piece of the given color and keeps only the
// sequences whose jump count equals the global maximum (majority law). All
// ties are retained so the player may choose among equally long chains.
func BestSequences(b *Board, color Color, captured []Square) []CaptureSequence {
	var all []CaptureSequence
	for _, sq := range b.Pieces(color) {
		cell := b.At(sq)
		all = append(all, SequencesForPiece(b, sq, color, cell.Rank, captured)...)
	}

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

// CaptureOrigins returns the distinct squares whose piece bears a mandatory
// capture, for client-side highlighting.
func CaptureOrigins(b *Board, color Color) []Square {
	seen := make(map[Square]bool)
	var origins []Square
	for _, seq := range BestSequences(b, color, nil) {
		if !seen[seq.Origin()] {
			seen[seq.Origin()] = true
			origins = append(origins, seq.Origin())
		}
	}
	return origins
}

// isVacant treats the moving piece's vacated origin square as empty.
func isVacant(b *Board, sq, pieceOrigin Square) bool {
	return b.At(sq).Empty() || sq == pieceOrigin
}

func isEnemyPiece(b *Board, sq, pieceOrigin Square, color Color) bool {
	if !b.InBounds(sq) || sq == pieceOrigin {
		return false
	}
	cell := b.At(sq)
	return !cell.Empty() && cell.Color != color
}
