package draughts

// ClientState is the full authoritative snapshot served to clients on game
// start, after every move, and on reconnect or explicit resync. It is the
// sole reconciliation mechanism: clients replace their local state with it
// wholesale.
type ClientState struct {
	Board            *Board       `json:"board"`
	Size             int          `json:"size"`
	Turn             Color        `json:"turn"`
	Forced           *Square      `json:"forced,omitempty"`
	MandatorySquares []Square     `json:"mandatorySquares"`
	NoProgressPlies  int          `json:"noProgressPlies"`
	Result           *Result      `json:"result,omitempty"`
	History          []MoveRecord `json:"history,omitempty"`
}

func (g *Game) GetClientState() *ClientState {
	var forced *Square
	if g.Forced != nil {
		sq := *g.Forced
		forced = &sq
	}

	var history []MoveRecord
	if g.Result != nil {
		// Replay history only matters once the game is over.
		history = append(history, g.History...)
	}

	return &ClientState{
		Board:            g.Board.Clone(),
		Size:             g.Board.Size,
		Turn:             g.Turn,
		Forced:           forced,
		MandatorySquares: g.MandatoryOrigins(),
		NoProgressPlies:  g.NoProgressPlies,
		Result:           g.Result,
		History:          history,
	}
}
