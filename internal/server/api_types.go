package server

import "damas-server/internal/draughts"

// ============================================================================
// ERROR RESPONSES
// ============================================================================
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ============================================================================
// CREATE ROOM (create_room)
// ============================================================================
type CreateRoomRequest struct {
	Username     string `json:"username"`
	Bet          int64  `json:"bet"`
	BoardSize    int    `json:"boardSize"`
	TimerMode    string `json:"timerMode"`
	TimerSeconds int    `json:"timerSeconds"`
}

type CreateRoomResponse struct {
	RoomCode string `json:"roomCode"`
	Token    string `json:"token"`
}

// ============================================================================
// JOIN ROOM (join_room)
// ============================================================================
type JoinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Username string `json:"username"`
}

type JoinRoomResponse struct {
	Success  bool   `json:"success"`
	RoomCode string `json:"roomCode"`
	Token    string `json:"token"`
	Bet      int64  `json:"bet"`
}

// BetConfirmationNotification asks the challenger to confirm the stake.
type BetConfirmationNotification struct {
	RoomCode string `json:"roomCode"`
	Bet      int64  `json:"bet"`
	Opponent string `json:"opponent"`
}

// OpponentJoinedNotification tells the creator someone took the open seat.
type OpponentJoinedNotification struct {
	Username string `json:"username"`
}

// ============================================================================
// GAME LIFECYCLE
// ============================================================================
type GameStartedNotification struct {
	RoomCode string                `json:"roomCode"`
	Color    draughts.Color        `json:"color"`
	Opponent string                `json:"opponent"`
	Bet      int64                 `json:"bet"`
	Timer    TimerState            `json:"timer"`
	State    *draughts.ClientState `json:"state"`
}

type GameStateMessage struct {
	RoomCode string                `json:"roomCode"`
	State    *draughts.ClientState `json:"state"`
	Timer    TimerState            `json:"timer"`
}

type GameOverNotification struct {
	RoomCode string                `json:"roomCode"`
	Winner   string                `json:"winner,omitempty"`
	Draw     bool                  `json:"draw"`
	Reason   string                `json:"reason"`
	Bet      int64                 `json:"bet"`
	History  []draughts.MoveRecord `json:"history,omitempty"`
	Board    *draughts.Board       `json:"board"`
}

// ============================================================================
// MOVES (move, valid_moves)
// ============================================================================
type MoveRequest struct {
	From draughts.Square `json:"from"`
	To   draughts.Square `json:"to"`
}

type MoveResultResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	MayContinue bool   `json:"mayContinue,omitempty"`
}

type ValidMovesRequest struct {
	Square draughts.Square `json:"square"`
}

type ValidMovesResponse struct {
	Square       draughts.Square   `json:"square"`
	Destinations []draughts.Square `json:"destinations"`
}

// ============================================================================
// TIMERS & PRESENCE
// ============================================================================
type TimerUpdateNotification struct {
	RoomCode string     `json:"roomCode"`
	Timer    TimerState `json:"timer"`
}

type OpponentStatusNotification struct {
	Username     string `json:"username"`
	Connected    bool   `json:"connected"`
	GraceSeconds int    `json:"graceSeconds,omitempty"`
}

// ============================================================================
// DRAW OFFERS & REMATCH
// ============================================================================
type DrawOfferNotification struct {
	From string `json:"from"`
}

type RematchNotification struct {
	From     string `json:"from"`
	Votes    int    `json:"votes"`
	Accepted bool   `json:"accepted"`
	Declined bool   `json:"declined"`
	Message  string `json:"message,omitempty"`
}

// ============================================================================
// RECONNECT / SYNC / SPECTATE
// ============================================================================
type ReconnectRequest struct {
	Token string `json:"token"`
}

type ReconnectResponse struct {
	Success  bool   `json:"success"`
	RoomCode string `json:"roomCode"`
	Message  string `json:"message,omitempty"`
}

type SpectateRequest struct {
	RoomCode string `json:"roomCode"`
}

// ============================================================================
// LOBBY (lobby_update broadcast, list_rooms)
// ============================================================================
type LobbyRoomInfo struct {
	RoomCode     string `json:"roomCode"`
	Creator      string `json:"creator"`
	Bet          int64  `json:"bet"`
	BoardSize    int    `json:"boardSize"`
	TimerMode    string `json:"timerMode"`
	TimerSeconds int    `json:"timerSeconds"`
}

type LobbyListMessage struct {
	Rooms []LobbyRoomInfo `json:"rooms"`
}
