package draughts_test

import (
	"testing"

	"damas-server/internal/draughts"
)

func TestNewBoardOpening(t *testing.T) {
	tests := []struct {
		size    int
		perSide int
	}{
		{size: 8, perSide: 12},
		{size: 10, perSide: 20},
	}

	for _, tt := range tests {
		b := draughts.NewBoard(tt.size)

		if got := b.Count(draughts.Light); got != tt.perSide {
			t.Errorf("size %d: light count = %d, want %d", tt.size, got, tt.perSide)
		}
		if got := b.Count(draughts.Dark); got != tt.perSide {
			t.Errorf("size %d: dark count = %d, want %d", tt.size, got, tt.perSide)
		}

		for r := 0; r < tt.size; r++ {
			for c := 0; c < tt.size; c++ {
				cell := b.At(draughts.Square{Row: r, Col: c})
				if cell.Empty() {
					continue
				}
				if !draughts.IsDarkSquare(r, c) {
					t.Errorf("size %d: piece on light square (%d,%d)", tt.size, r, c)
				}
				if cell.Rank != draughts.Man {
					t.Errorf("size %d: opening piece at (%d,%d) is not a man", tt.size, r, c)
				}
			}
		}
	}
}

func TestInBounds(t *testing.T) {
	b := draughts.NewBoard(8)

	if !b.InBounds(draughts.Square{Row: 0, Col: 0}) {
		t.Error("(0,0) should be in bounds")
	}
	if !b.InBounds(draughts.Square{Row: 7, Col: 7}) {
		t.Error("(7,7) should be in bounds")
	}
	if b.InBounds(draughts.Square{Row: -1, Col: 3}) {
		t.Error("(-1,3) should be out of bounds")
	}
	if b.InBounds(draughts.Square{Row: 3, Col: 8}) {
		t.Error("(3,8) should be out of bounds")
	}
}

func TestDiagonalSteps(t *testing.T) {
	between := draughts.DiagonalSteps(draughts.Square{Row: 0, Col: 1}, draughts.Square{Row: 3, Col: 4})
	want := []draughts.Square{{Row: 1, Col: 2}, {Row: 2, Col: 3}}
	if len(between) != len(want) {
		t.Fatalf("got %d squares, want %d", len(between), len(want))
	}
	for i := range want {
		if between[i] != want[i] {
			t.Errorf("step %d = %v, want %v", i, between[i], want[i])
		}
	}

	if steps := draughts.DiagonalSteps(draughts.Square{Row: 0, Col: 0}, draughts.Square{Row: 0, Col: 4}); steps != nil {
		t.Errorf("non-diagonal pair should yield nil, got %v", steps)
	}
	if steps := draughts.DiagonalSteps(draughts.Square{Row: 2, Col: 2}, draughts.Square{Row: 3, Col: 3}); len(steps) != 0 {
		t.Errorf("adjacent squares should have no in-between steps, got %v", steps)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	b := draughts.NewBoard(8)
	clone := b.Clone()

	sq := draughts.Square{Row: 0, Col: 1}
	clone.Clear(sq)

	if b.At(sq).Empty() {
		t.Error("clearing the clone mutated the original")
	}
}

func TestForwardDirAndBackRank(t *testing.T) {
	b := draughts.NewBoard(8)

	if draughts.Light.ForwardDir() != 1 || draughts.Dark.ForwardDir() != -1 {
		t.Error("forward directions inverted")
	}
	if b.BackRank(draughts.Light) != 7 || b.BackRank(draughts.Dark) != 0 {
		t.Error("back ranks inverted")
	}
	if draughts.Light.Opponent() != draughts.Dark || draughts.Dark.Opponent() != draughts.Light {
		t.Error("opponent mapping broken")
	}
}
