package draughts_test

import (
	"testing"

	"damas-server/internal/draughts"
)

func sq(r, c int) draughts.Square {
	return draughts.Square{Row: r, Col: c}
}

func place(b *draughts.Board, r, c int, color draughts.Color, rank draughts.Rank) {
	b.Set(sq(r, c), draughts.Cell{Color: color, Rank: rank})
}

func TestManSingleCapture(t *testing.T) {
	b := draughts.EmptyBoard(8)
	place(b, 2, 3, draughts.Light, draughts.Man)
	place(b, 3, 4, draughts.Dark, draughts.Man)

	seqs := draughts.SequencesForPiece(b, sq(2, 3), draughts.Light, draughts.Man, nil)

	if len(seqs) != 1 {
		t.Fatalf("got %d sequences, want 1", len(seqs))
	}
	seq := seqs[0]
	if seq.Jumps() != 1 {
		t.Errorf("jumps = %d, want 1", seq.Jumps())
	}
	if seq.Landing() != sq(4, 5) {
		t.Errorf("landing = %v, want (4,5)", seq.Landing())
	}
	if seq.Captured[0] != sq(3, 4) {
		t.Errorf("captured = %v, want (3,4)", seq.Captured[0])
	}
}

func TestManCapturesBackward(t *testing.T) {
	// Men move only forward but capture in all four directions.
	b := draughts.EmptyBoard(8)
	place(b, 4, 3, draughts.Light, draughts.Man)
	place(b, 3, 2, draughts.Dark, draughts.Man)

	seqs := draughts.SequencesForPiece(b, sq(4, 3), draughts.Light, draughts.Man, nil)

	if len(seqs) != 1 {
		t.Fatalf("got %d sequences, want 1", len(seqs))
	}
	if seqs[0].Landing() != sq(2, 1) {
		t.Errorf("landing = %v, want (2,1)", seqs[0].Landing())
	}
}

func TestManMultiJumpOnlyMaximalReturned(t *testing.T) {
	b := draughts.EmptyBoard(8)
	place(b, 2, 3, draughts.Light, draughts.Man)
	place(b, 3, 4, draughts.Dark, draughts.Man)
	place(b, 5, 6, draughts.Dark, draughts.Man)

	seqs := draughts.SequencesForPiece(b, sq(2, 3), draughts.Light, draughts.Man, nil)

	if len(seqs) != 1 {
		t.Fatalf("got %d sequences, want 1", len(seqs))
	}
	seq := seqs[0]
	if seq.Jumps() != 2 {
		t.Fatalf("jumps = %d, want 2 (short prefix must not be returned)", seq.Jumps())
	}
	wantPath := []draughts.Square{sq(2, 3), sq(4, 5), sq(6, 7)}
	for i, want := range wantPath {
		if seq.Path[i] != want {
			t.Errorf("path[%d] = %v, want %v", i, seq.Path[i], want)
		}
	}
}

func TestKingLandsAnywhereBeyondCapturedPiece(t *testing.T) {
	// A king at (3,6) jumping the man at (2,7) may stop on any vacant
	// square beyond it: one sequence per landing.
	b := draughts.EmptyBoard(10)
	place(b, 3, 6, draughts.Light, draughts.King)
	place(b, 2, 7, draughts.Dark, draughts.Man)

	seqs := draughts.SequencesForPiece(b, sq(3, 6), draughts.Light, draughts.King, nil)

	if len(seqs) != 2 {
		t.Fatalf("got %d sequences, want 2 (one per landing)", len(seqs))
	}
	landings := map[draughts.Square]bool{}
	for _, seq := range seqs {
		if seq.Jumps() != 1 {
			t.Errorf("jumps = %d, want 1", seq.Jumps())
		}
		landings[seq.Landing()] = true
	}
	if !landings[sq(1, 8)] || !landings[sq(0, 9)] {
		t.Errorf("landings = %v, want (1,8) and (0,9)", landings)
	}
}

func TestKingCapturesAtRange(t *testing.T) {
	b := draughts.EmptyBoard(8)
	place(b, 0, 1, draughts.Light, draughts.King)
	place(b, 4, 5, draughts.Dark, draughts.Man)

	seqs := draughts.SequencesForPiece(b, sq(0, 1), draughts.Light, draughts.King, nil)

	if len(seqs) != 2 {
		t.Fatalf("got %d sequences, want 2", len(seqs))
	}
	for _, seq := range seqs {
		if seq.Captured[0] != sq(4, 5) {
			t.Errorf("captured = %v, want (4,5)", seq.Captured[0])
		}
	}
}

func TestKingBlockedByOwnPiece(t *testing.T) {
	b := draughts.EmptyBoard(8)
	place(b, 0, 1, draughts.Light, draughts.King)
	place(b, 2, 3, draughts.Light, draughts.Man)
	place(b, 4, 5, draughts.Dark, draughts.Man)

	seqs := draughts.SequencesForPiece(b, sq(0, 1), draughts.Light, draughts.King, nil)
	if len(seqs) != 0 {
		t.Errorf("own piece should block the slide, got %v", seqs)
	}
}

func TestAlreadyCapturedPieceCannotBeTakenAgain(t *testing.T) {
	b := draughts.EmptyBoard(8)
	place(b, 5, 0, draughts.Light, draughts.King)
	place(b, 3, 2, draughts.Dark, draughts.Man)

	seqs := draughts.SequencesForPiece(b, sq(5, 0), draughts.Light, draughts.King,
		[]draughts.Square{sq(3, 2)})
	if len(seqs) != 0 {
		t.Errorf("piece captured earlier this turn must not be taken again, got %v", seqs)
	}
}

func TestGhostPieceBlocksKingSlide(t *testing.T) {
	// A piece captured earlier in the turn stays on the board and blocks
	// the path to a fresh enemy piece behind it.
	b := draughts.EmptyBoard(8)
	place(b, 5, 0, draughts.Light, draughts.King)
	place(b, 4, 1, draughts.Dark, draughts.Man)
	place(b, 2, 3, draughts.Dark, draughts.Man)

	seqs := draughts.SequencesForPiece(b, sq(5, 0), draughts.Light, draughts.King,
		[]draughts.Square{sq(4, 1)})
	if len(seqs) != 0 {
		t.Errorf("ghost piece should block traversal, got %v", seqs)
	}
}

func TestBestSequencesMajorityLaw(t *testing.T) {
	// One man has a single jump, another has a double: only the double
	// survives the majority filter.
	b := draughts.EmptyBoard(8)
	place(b, 2, 1, draughts.Light, draughts.Man)
	place(b, 3, 2, draughts.Dark, draughts.Man)
	place(b, 2, 5, draughts.Light, draughts.Man)
	place(b, 3, 6, draughts.Dark, draughts.Man)
	place(b, 5, 6, draughts.Dark, draughts.Man)

	best := draughts.BestSequences(b, draughts.Light, nil)

	if len(best) == 0 {
		t.Fatal("expected sequences")
	}
	for _, seq := range best {
		if seq.Jumps() != 2 {
			t.Errorf("majority law violated: got a %d-jump sequence", seq.Jumps())
		}
		if seq.Origin() != sq(2, 5) {
			t.Errorf("origin = %v, want (2,5)", seq.Origin())
		}
	}
}

func TestBestSequencesRetainsTies(t *testing.T) {
	b := draughts.EmptyBoard(8)
	place(b, 2, 1, draughts.Light, draughts.Man)
	place(b, 3, 2, draughts.Dark, draughts.Man)
	place(b, 2, 5, draughts.Light, draughts.Man)
	place(b, 3, 6, draughts.Dark, draughts.Man)

	best := draughts.BestSequences(b, draughts.Light, nil)

	if len(best) != 2 {
		t.Fatalf("got %d sequences, want both equally long chains", len(best))
	}
}

func TestBestSequencesEmptyWithoutCaptures(t *testing.T) {
	b := draughts.NewBoard(8)
	if best := draughts.BestSequences(b, draughts.Light, nil); len(best) != 0 {
		t.Errorf("opening position has no captures, got %v", best)
	}
}

func TestCaptureOrigins(t *testing.T) {
	b := draughts.EmptyBoard(8)
	place(b, 2, 1, draughts.Light, draughts.Man)
	place(b, 3, 2, draughts.Dark, draughts.Man)
	place(b, 2, 5, draughts.Light, draughts.Man)

	origins := draughts.CaptureOrigins(b, draughts.Light)

	if len(origins) != 1 || origins[0] != sq(2, 1) {
		t.Errorf("origins = %v, want [(2,1)]", origins)
	}
}
