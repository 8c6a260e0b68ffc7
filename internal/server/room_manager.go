package server

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"damas-server/internal/draughts"
)

type RoomLifecycle string

const (
	LifecycleWaiting    RoomLifecycle = "waiting"
	LifecycleBetPending RoomLifecycle = "bet_pending"
	LifecycleActive     RoomLifecycle = "active"
	LifecycleConcluded  RoomLifecycle = "concluded"
	LifecycleCleanup    RoomLifecycle = "cleanup"
)

type PlayerSeat struct {
	Identity    string         `json:"identity"`
	Token       string         `json:"-"`
	Color       draughts.Color `json:"color"`
	Connected   bool           `json:"connected"`
	RematchVote bool           `json:"-"`
}

// MatchOutcome is the room-level result: forfeits and agreed draws exist
// even when the rule engine never produced a terminal position. Winner is
// an identity, empty on a draw.
type MatchOutcome struct {
	Winner string `json:"winner,omitempty"`
	Draw   bool   `json:"draw"`
	Reason string `json:"reason"`
}

// Room is one match: two seats, the authoritative game, the clock, and the
// lifecycle. All mutation happens under mu; handlers for different rooms
// run fully in parallel.
type Room struct {
	mu sync.Mutex

	Code         string
	Bet          int64
	BoardSize    int
	TimerMode    TimerMode
	TimerSeconds int

	Lifecycle RoomLifecycle
	Seats     [2]PlayerSeat
	Game      *draughts.Game
	Timer     TimerState
	Outcome   *MatchOutcome

	drawOfferFrom string
	spectators    []string

	clock        *roomClock
	clockPaused  bool
	graceTimer   *time.Timer
	graceFor     string
	cleanupTimer *time.Timer

	CreatedAt time.Time
	UpdatedAt time.Time
}

// seatByToken returns the seat index for a token, or -1. Caller holds mu.
func (room *Room) seatByToken(token string) int {
	for i := range room.Seats {
		if room.Seats[i].Token == token && token != "" {
			return i
		}
	}
	return -1
}

// seatByColor returns the seat holding a color. Caller holds mu; only
// meaningful once colors are assigned.
func (room *Room) seatByColor(color draughts.Color) *PlayerSeat {
	for i := range room.Seats {
		if room.Seats[i].Color == color {
			return &room.Seats[i]
		}
	}
	return &room.Seats[0]
}

// tokensLocked lists every token attached to the room, spectators included.
func (room *Room) tokensLocked() []string {
	var tokens []string
	for i := range room.Seats {
		if room.Seats[i].Token != "" {
			tokens = append(tokens, room.Seats[i].Token)
		}
	}
	tokens = append(tokens, room.spectators...)
	return tokens
}

// Notifier carries outbound events from state transitions to whatever
// transport is attached. Implementations must never block: room handlers
// call these while holding the room lock.
type Notifier interface {
	ToToken(token, msgType string, payload interface{})
	LobbyChanged()
	RoomClosed(roomCode string, tokens []string)
}

// RoomManager owns the map from room code to room and serializes access
// per room. It consumes the Ledger and MatchRecorder collaborators and
// emits every outbound event through the Notifier.
type RoomManager struct {
	rooms     map[string]*Room
	tokens    map[string]string // seat token -> room code
	usedCodes map[string]bool
	mu        sync.RWMutex

	ledger   Ledger
	recorder MatchRecorder
	notifier Notifier

	gracePeriod  time.Duration
	cleanupDelay time.Duration
	tickInterval time.Duration
}

func NewRoomManager(ledger Ledger, recorder MatchRecorder, notifier Notifier) *RoomManager {
	return &RoomManager{
		rooms:        make(map[string]*Room),
		tokens:       make(map[string]string),
		usedCodes:    make(map[string]bool),
		ledger:       ledger,
		recorder:     recorder,
		notifier:     notifier,
		gracePeriod:  60 * time.Second,
		cleanupDelay: 90 * time.Second,
		tickInterval: time.Second,
	}
}

func (rm *RoomManager) getRoom(code string) (*Room, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	room, exists := rm.rooms[code]
	if !exists {
		return nil, errors.New("ROOM_NOT_FOUND: Room not found")
	}
	return room, nil
}

func (rm *RoomManager) roomByToken(token string) (*Room, error) {
	rm.mu.RLock()
	code, exists := rm.tokens[token]
	rm.mu.RUnlock()

	if !exists {
		return nil, errors.New("NOT_IN_ROOM: No room for this session")
	}
	return rm.getRoom(code)
}

func validateIdentity(identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return errors.New("USERNAME_INVALID: Username cannot be empty")
	}
	if len(identity) > 20 {
		return errors.New("USERNAME_INVALID: Username too long (max 20 characters)")
	}
	return nil
}

// CreateRoom opens a Waiting room with the creator seated. The stake is
// not debited yet; that happens when a challenger accepts the bet.
func (rm *RoomManager) CreateRoom(identity string, bet int64, size int, mode TimerMode, seconds int) (*Room, string, error) {
	if err := validateIdentity(identity); err != nil {
		return nil, "", err
	}
	if bet < 0 {
		return nil, "", errors.New("INVALID_BET: Stake cannot be negative")
	}
	if size == 0 {
		size = 8
	}
	if size != 8 && size != 10 {
		return nil, "", errors.New("INVALID_BOARD: Board size must be 8 or 10")
	}
	if mode == "" {
		mode = TimerPerMove
	}
	if !mode.Valid() {
		return nil, "", errors.New("INVALID_TIMER: Unknown timer mode")
	}
	if seconds <= 0 {
		if mode == TimerPerMatch {
			seconds = 300
		} else {
			seconds = 60
		}
	}

	token := uuid.New().String()
	now := time.Now()
	room := &Room{
		Bet:          bet,
		BoardSize:    size,
		TimerMode:    mode,
		TimerSeconds: seconds,
		Lifecycle:    LifecycleWaiting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	room.Seats[0] = PlayerSeat{Identity: identity, Token: token, Connected: true}

	rm.mu.Lock()
	room.Code = GenerateRoomCode(rm.usedCodes)
	rm.usedCodes[room.Code] = true
	rm.rooms[room.Code] = room
	rm.tokens[token] = room.Code
	rm.mu.Unlock()

	rm.notifier.LobbyChanged()
	return room, token, nil
}

// JoinRoom seats a challenger and moves the room to BetPending. The
// challenger still has to accept the stake before anything is debited.
func (rm *RoomManager) JoinRoom(code, identity string) (*Room, string, error) {
	code = NormalizeRoomCode(code)
	if err := ValidateRoomCode(code); err != nil {
		return nil, "", err
	}
	if err := validateIdentity(identity); err != nil {
		return nil, "", err
	}

	room, err := rm.getRoom(code)
	if err != nil {
		return nil, "", err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Lifecycle != LifecycleWaiting {
		return nil, "", errors.New("ROOM_UNAVAILABLE: Room is not open for joining")
	}
	if room.Seats[0].Identity == identity {
		return nil, "", errors.New("USERNAME_TAKEN: That name is already seated in this room")
	}

	token := uuid.New().String()
	room.Seats[1] = PlayerSeat{Identity: identity, Token: token, Connected: true}
	room.Lifecycle = LifecycleBetPending
	room.UpdatedAt = time.Now()

	rm.mu.Lock()
	rm.tokens[token] = room.Code
	rm.mu.Unlock()

	rm.notifier.ToToken(room.Seats[0].Token, "opponent_joined", OpponentJoinedNotification{
		Username: identity,
	})
	rm.notifier.LobbyChanged()
	return room, token, nil
}

// AcceptBet debits both wallets atomically and activates the room. If the
// creator's debit fails after the challenger's succeeded, the challenger is
// refunded: no partial debit survives.
func (rm *RoomManager) AcceptBet(ctx context.Context, token string) (*Room, error) {
	room, err := rm.roomByToken(token)
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Lifecycle != LifecycleBetPending {
		return nil, errors.New("INVALID_STATUS: No bet awaiting acceptance")
	}
	if room.seatByToken(token) != 1 {
		return nil, errors.New("NOT_CHALLENGER: Only the joining player accepts the bet")
	}

	if err := rm.debitBoth(ctx, room); err != nil {
		return nil, err
	}

	rm.activateLocked(room, true)
	rm.notifier.LobbyChanged()
	return room, nil
}

// debitBoth charges the stake to both seats with rollback. Caller holds
// the room lock.
func (rm *RoomManager) debitBoth(ctx context.Context, room *Room) error {
	if room.Bet == 0 {
		return nil
	}

	if _, err := rm.ledger.Debit(ctx, room.Seats[1].Identity, room.Bet); err != nil {
		return err
	}
	if _, err := rm.ledger.Debit(ctx, room.Seats[0].Identity, room.Bet); err != nil {
		if _, refundErr := rm.ledger.Credit(ctx, room.Seats[1].Identity, room.Bet); refundErr != nil {
			logrus.Errorf("Refund after failed debit in %s: %v", room.Code, refundErr)
		}
		return err
	}
	return nil
}

// activateLocked starts (or restarts, for a rematch) the game. Fresh games
// get random colors, rematches swap them.
func (rm *RoomManager) activateLocked(room *Room, fresh bool) {
	if fresh {
		first := rand.Intn(2)
		room.Seats[first].Color = draughts.Light
		room.Seats[1-first].Color = draughts.Dark
	} else {
		room.Seats[0].Color, room.Seats[1].Color = room.Seats[1].Color, room.Seats[0].Color
	}

	room.Game = draughts.NewGame(room.BoardSize)
	room.Timer = NewTimerState(room.TimerMode, room.TimerSeconds)
	room.Lifecycle = LifecycleActive
	room.Outcome = nil
	room.drawOfferFrom = ""
	room.Seats[0].RematchVote = false
	room.Seats[1].RematchVote = false
	room.UpdatedAt = time.Now()

	if room.cleanupTimer != nil {
		room.cleanupTimer.Stop()
		room.cleanupTimer = nil
	}

	rm.startClockLocked(room)

	state := room.Game.GetClientState()
	for i := range room.Seats {
		seat := room.Seats[i]
		rm.notifier.ToToken(seat.Token, "game_started", GameStartedNotification{
			RoomCode: room.Code,
			Color:    seat.Color,
			Opponent: room.Seats[1-i].Identity,
			Bet:      room.Bet,
			Timer:    room.Timer,
			State:    state,
		})
	}
	for _, token := range room.spectators {
		rm.notifier.ToToken(token, "game_started", GameStartedNotification{
			RoomCode: room.Code,
			Opponent: "",
			Bet:      room.Bet,
			Timer:    room.Timer,
			State:    state,
		})
	}
}

// DeclineBet frees the challenger's seat and reopens the room.
func (rm *RoomManager) DeclineBet(token string) error {
	room, err := rm.roomByToken(token)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Lifecycle != LifecycleBetPending || room.seatByToken(token) != 1 {
		return errors.New("INVALID_STATUS: No bet to decline")
	}

	rm.mu.Lock()
	delete(rm.tokens, token)
	rm.mu.Unlock()

	room.Seats[1] = PlayerSeat{}
	room.Lifecycle = LifecycleWaiting
	room.UpdatedAt = time.Now()

	rm.notifier.ToToken(room.Seats[0].Token, "bet_declined", ErrorMessage{
		Message: "Challenger declined the stake",
	})
	rm.notifier.LobbyChanged()
	return nil
}

// CancelRoom lets the creator abandon a room that never started.
func (rm *RoomManager) CancelRoom(token string) error {
	room, err := rm.roomByToken(token)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.seatByToken(token) != 0 {
		return errors.New("NOT_CREATOR: Only the room creator can cancel")
	}
	if room.Lifecycle != LifecycleWaiting && room.Lifecycle != LifecycleBetPending {
		return errors.New("INVALID_STATUS: Game already started")
	}

	rm.destroyLocked(room)
	return nil
}

// ErrIgnored marks events the coordinator drops silently: out-of-turn or
// wrong-color moves are not errors the client hears about.
var ErrIgnored = errors.New("ignored")

// SubmitMove runs a move through the rule engine. Rule violations come back
// as errors with a client-facing reason; moves from the wrong side return
// ErrIgnored with no state change at all.
func (rm *RoomManager) SubmitMove(token string, from, to draughts.Square) (*draughts.MoveResult, error) {
	room, err := rm.roomByToken(token)
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Lifecycle != LifecycleActive {
		return nil, errors.New("GAME_NOT_ACTIVE: No game in progress")
	}

	seatIdx := room.seatByToken(token)
	if seatIdx == -1 {
		return nil, errors.New("NOT_IN_ROOM: Spectators cannot move")
	}
	seat := room.Seats[seatIdx]
	if seat.Color != room.Game.Turn {
		return nil, ErrIgnored
	}

	res, err := room.Game.Move(seat.Color, from, to)
	if err != nil {
		return nil, err
	}

	// A played move supersedes any standing draw offer.
	room.drawOfferFrom = ""
	room.UpdatedAt = time.Now()

	if res.TurnEnded {
		room.resetTurnClockLocked()
	}

	rm.broadcastStateLocked(room)

	if result := room.Game.Result; result != nil {
		rm.concludeLocked(room, outcomeFromResult(room, result))
	}
	return res, nil
}

func outcomeFromResult(room *Room, result *draughts.Result) MatchOutcome {
	if result.Draw {
		return MatchOutcome{Draw: true, Reason: result.Reason}
	}
	return MatchOutcome{
		Winner: room.seatByColor(result.Winner).Identity,
		Reason: result.Reason,
	}
}

// ValidMoves reports the legal destinations for a square, for client
// highlighting. Advisory only; the server re-validates every move.
func (rm *RoomManager) ValidMoves(token string, sq draughts.Square) ([]draughts.Square, error) {
	room, err := rm.roomByToken(token)
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Lifecycle != LifecycleActive {
		return nil, errors.New("GAME_NOT_ACTIVE: No game in progress")
	}
	return room.Game.LegalDestinations(sq), nil
}

// Resign concedes the game.
func (rm *RoomManager) Resign(token string) error {
	room, err := rm.roomByToken(token)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	seatIdx := room.seatByToken(token)
	if seatIdx == -1 || room.Lifecycle != LifecycleActive {
		return errors.New("GAME_NOT_ACTIVE: No game in progress")
	}

	rm.concludeLocked(room, MatchOutcome{
		Winner: room.Seats[1-seatIdx].Identity,
		Reason: "resignation",
	})
	return nil
}

// OfferDraw records a standing draw offer and notifies the opponent.
func (rm *RoomManager) OfferDraw(token string) error {
	room, err := rm.roomByToken(token)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	seatIdx := room.seatByToken(token)
	if seatIdx == -1 || room.Lifecycle != LifecycleActive {
		return errors.New("GAME_NOT_ACTIVE: No game in progress")
	}
	if room.drawOfferFrom != "" {
		return errors.New("DRAW_PENDING: A draw offer is already on the table")
	}

	room.drawOfferFrom = room.Seats[seatIdx].Identity
	rm.notifier.ToToken(room.Seats[1-seatIdx].Token, "draw_offered", DrawOfferNotification{
		From: room.Seats[seatIdx].Identity,
	})
	return nil
}

// AcceptDraw concludes the game as agreed, clearing the offer atomically
// with the transition.
func (rm *RoomManager) AcceptDraw(token string) error {
	room, err := rm.roomByToken(token)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	seatIdx := room.seatByToken(token)
	if seatIdx == -1 || room.Lifecycle != LifecycleActive {
		return errors.New("GAME_NOT_ACTIVE: No game in progress")
	}
	if room.drawOfferFrom == "" || room.drawOfferFrom == room.Seats[seatIdx].Identity {
		return errors.New("NO_OFFER: No draw offer from your opponent")
	}

	rm.concludeLocked(room, MatchOutcome{Draw: true, Reason: "draw agreed"})
	return nil
}

func (rm *RoomManager) DeclineDraw(token string) error {
	room, err := rm.roomByToken(token)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	seatIdx := room.seatByToken(token)
	if seatIdx == -1 || room.drawOfferFrom == "" || room.drawOfferFrom == room.Seats[seatIdx].Identity {
		return errors.New("NO_OFFER: No draw offer from your opponent")
	}

	room.drawOfferFrom = ""
	rm.notifier.ToToken(room.Seats[1-seatIdx].Token, "draw_declined", DrawOfferNotification{
		From: room.Seats[seatIdx].Identity,
	})
	return nil
}

// RequestRematch registers a rematch vote. When both seats have voted the
// stakes are re-debited and the game restarts with swapped colors; if
// either wallet cannot cover the stake the rematch is declined, nothing is
// debited, and the room is torn down.
func (rm *RoomManager) RequestRematch(ctx context.Context, token string) error {
	room, err := rm.roomByToken(token)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	seatIdx := room.seatByToken(token)
	if seatIdx == -1 || room.Lifecycle != LifecycleConcluded {
		return errors.New("INVALID_STATUS: No finished game to rematch")
	}

	room.Seats[seatIdx].RematchVote = true

	if !room.Seats[0].RematchVote || !room.Seats[1].RematchVote {
		rm.notifier.ToToken(room.Seats[1-seatIdx].Token, "rematch_requested", RematchNotification{
			From:  room.Seats[seatIdx].Identity,
			Votes: 1,
		})
		return nil
	}

	if err := rm.debitBoth(ctx, room); err != nil {
		rm.broadcastLocked(room, "rematch_declined", RematchNotification{
			Declined: true,
			Message:  err.Error(),
		})
		rm.destroyLocked(room)
		return err
	}

	rm.broadcastLocked(room, "rematch_accepted", RematchNotification{
		Votes:    2,
		Accepted: true,
	})
	rm.activateLocked(room, false)
	return nil
}

// HandleDisconnect reacts to a dropped connection. Waiting rooms die
// immediately; active rooms pause the clock and arm the grace timer.
func (rm *RoomManager) HandleDisconnect(token string) {
	room, err := rm.roomByToken(token)
	if err != nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	seatIdx := room.seatByToken(token)
	if seatIdx == -1 {
		room.dropSpectatorLocked(token)
		rm.mu.Lock()
		delete(rm.tokens, token)
		rm.mu.Unlock()
		return
	}

	room.Seats[seatIdx].Connected = false
	room.UpdatedAt = time.Now()

	switch room.Lifecycle {
	case LifecycleWaiting:
		rm.destroyLocked(room)

	case LifecycleBetPending:
		if seatIdx == 1 {
			rm.mu.Lock()
			delete(rm.tokens, token)
			rm.mu.Unlock()
			room.Seats[1] = PlayerSeat{}
			room.Lifecycle = LifecycleWaiting
			rm.notifier.ToToken(room.Seats[0].Token, "opponent_left", OpponentStatusNotification{
				Connected: false,
			})
			rm.notifier.LobbyChanged()
		} else {
			rm.destroyLocked(room)
		}

	case LifecycleActive:
		room.pauseClockLocked()
		identity := room.Seats[seatIdx].Identity
		room.graceFor = identity
		grace := rm.gracePeriod
		code := room.Code
		room.graceTimer = time.AfterFunc(grace, func() {
			rm.forfeitAbsent(code, identity)
		})
		rm.notifier.ToToken(room.Seats[1-seatIdx].Token, "opponent_lost", OpponentStatusNotification{
			Username:     identity,
			Connected:    false,
			GraceSeconds: int(grace / time.Second),
		})

	case LifecycleConcluded:
		if !room.Seats[0].Connected && !room.Seats[1].Connected {
			rm.destroyLocked(room)
		}
	}
}

// forfeitAbsent fires when the grace period expires. No-op unless the room
// is still active and the player never came back.
func (rm *RoomManager) forfeitAbsent(code, identity string) {
	room, err := rm.getRoom(code)
	if err != nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Lifecycle != LifecycleActive || room.graceFor != identity {
		return
	}
	for i := range room.Seats {
		if room.Seats[i].Identity == identity && room.Seats[i].Connected {
			return
		}
	}

	winner := room.Seats[0].Identity
	if winner == identity {
		winner = room.Seats[1].Identity
	}
	rm.concludeLocked(room, MatchOutcome{Winner: winner, Reason: "abandonment"})
}

// HandleReconnect rebinds a returning player without losing seat, color,
// or clock state, and resumes the game.
func (rm *RoomManager) HandleReconnect(token string) (*Room, error) {
	room, err := rm.roomByToken(token)
	if err != nil {
		return nil, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	seatIdx := room.seatByToken(token)
	if seatIdx == -1 {
		return nil, errors.New("NOT_IN_ROOM: No seat for this session")
	}

	room.Seats[seatIdx].Connected = true
	room.UpdatedAt = time.Now()

	if room.graceFor == room.Seats[seatIdx].Identity {
		if room.graceTimer != nil {
			room.graceTimer.Stop()
			room.graceTimer = nil
		}
		room.graceFor = ""
	}
	if room.Lifecycle == LifecycleActive && room.Seats[0].Connected && room.Seats[1].Connected {
		room.resumeClockLocked()
	}

	rm.notifier.ToToken(room.Seats[1-seatIdx].Token, "opponent_resumed", OpponentStatusNotification{
		Username:  room.Seats[seatIdx].Identity,
		Connected: true,
	})
	return room, nil
}

// Spectate attaches a read-only session to a room.
func (rm *RoomManager) Spectate(code string) (*Room, string, error) {
	room, err := rm.getRoom(NormalizeRoomCode(code))
	if err != nil {
		return nil, "", err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	token := uuid.New().String()
	room.spectators = append(room.spectators, token)
	rm.registerSpectator(token, room.Code)
	return room, token, nil
}

func (room *Room) dropSpectatorLocked(token string) {
	for i, t := range room.spectators {
		if t == token {
			room.spectators = append(room.spectators[:i], room.spectators[i+1:]...)
			return
		}
	}
}

// StateSnapshot builds the full authoritative snapshot served on explicit
// resync or reconnect.
func (rm *RoomManager) StateSnapshot(token string) (GameStateMessage, error) {
	room, err := rm.roomByToken(token)
	if err != nil {
		return GameStateMessage{}, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Game == nil {
		return GameStateMessage{}, errors.New("GAME_NOT_ACTIVE: No game in progress")
	}
	return GameStateMessage{
		RoomCode: room.Code,
		State:    room.Game.GetClientState(),
		Timer:    room.Timer,
	}, nil
}

// SpectatorToken registers a spectator token for room lookups.
func (rm *RoomManager) registerSpectator(token, code string) {
	rm.mu.Lock()
	rm.tokens[token] = code
	rm.mu.Unlock()
}

// ListRooms snapshots the open rooms for the lobby roster.
func (rm *RoomManager) ListRooms() []LobbyRoomInfo {
	rm.mu.RLock()
	rooms := make([]*Room, 0, len(rm.rooms))
	for _, room := range rm.rooms {
		rooms = append(rooms, room)
	}
	rm.mu.RUnlock()

	infos := []LobbyRoomInfo{}
	for _, room := range rooms {
		room.mu.Lock()
		if room.Lifecycle == LifecycleWaiting {
			infos = append(infos, LobbyRoomInfo{
				RoomCode:     room.Code,
				Creator:      room.Seats[0].Identity,
				Bet:          room.Bet,
				BoardSize:    room.BoardSize,
				TimerMode:    string(room.TimerMode),
				TimerSeconds: room.TimerSeconds,
			})
		}
		room.mu.Unlock()
	}
	return infos
}

// concludeLocked is the single idempotent termination transition. The
// lifecycle check-and-set guarantees exactly one payout no matter how many
// triggers race; the clock is stopped before anything else so a pending
// tick can never double-fire. Caller holds the room lock.
func (rm *RoomManager) concludeLocked(room *Room, outcome MatchOutcome) bool {
	if room.Lifecycle != LifecycleActive {
		return false
	}

	room.stopClockLocked()
	if room.graceTimer != nil {
		room.graceTimer.Stop()
		room.graceTimer = nil
	}
	room.graceFor = ""
	room.drawOfferFrom = ""

	room.Lifecycle = LifecycleConcluded
	room.Outcome = &outcome
	room.UpdatedAt = time.Now()

	rm.payout(room, outcome)
	rm.recordMatch(room, outcome)

	var history []draughts.MoveRecord
	var board *draughts.Board
	if room.Game != nil {
		history = room.Game.History
		board = room.Game.Board
	}
	rm.broadcastLocked(room, "game_over", GameOverNotification{
		RoomCode: room.Code,
		Winner:   outcome.Winner,
		Draw:     outcome.Draw,
		Reason:   outcome.Reason,
		Bet:      room.Bet,
		History:  history,
		Board:    board,
	})

	code := room.Code
	room.cleanupTimer = time.AfterFunc(rm.cleanupDelay, func() {
		rm.cleanupRoom(code)
	})

	rm.notifier.LobbyChanged()
	return true
}

func (rm *RoomManager) payout(room *Room, outcome MatchOutcome) {
	if room.Bet == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if outcome.Draw {
		for i := range room.Seats {
			if _, err := rm.ledger.Credit(ctx, room.Seats[i].Identity, room.Bet); err != nil {
				logrus.Errorf("Refund to %s in %s: %v", room.Seats[i].Identity, room.Code, err)
			}
		}
		return
	}
	if _, err := rm.ledger.Credit(ctx, outcome.Winner, 2*room.Bet); err != nil {
		logrus.Errorf("Payout to %s in %s: %v", outcome.Winner, room.Code, err)
	}
}

// recordMatch emits the history record without blocking game flow.
func (rm *RoomManager) recordMatch(room *Room, outcome MatchOutcome) {
	record := MatchRecord{
		Player1: room.Seats[0].Identity,
		Player2: room.Seats[1].Identity,
		Winner:  outcome.Winner,
		Bet:     room.Bet,
		Mode:    string(room.TimerMode),
		Reason:  outcome.Reason,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := rm.recorder.RecordResult(ctx, record); err != nil {
			logrus.Errorf("Record match %s: %v", room.Code, err)
		}
	}()
}

// cleanupRoom destroys a concluded room once the rematch window closed.
func (rm *RoomManager) cleanupRoom(code string) {
	room, err := rm.getRoom(code)
	if err != nil {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.Lifecycle != LifecycleConcluded {
		return
	}
	rm.destroyLocked(room)
}

// destroyLocked removes the room from the registry. Caller holds the room
// lock; the registry lock is nested inside, never the other way around.
func (rm *RoomManager) destroyLocked(room *Room) {
	room.stopClockLocked()
	if room.graceTimer != nil {
		room.graceTimer.Stop()
		room.graceTimer = nil
	}
	if room.cleanupTimer != nil {
		room.cleanupTimer.Stop()
		room.cleanupTimer = nil
	}

	tokens := room.tokensLocked()
	room.Lifecycle = LifecycleCleanup

	rm.mu.Lock()
	delete(rm.rooms, room.Code)
	for _, token := range tokens {
		delete(rm.tokens, token)
	}
	rm.mu.Unlock()

	rm.notifier.RoomClosed(room.Code, tokens)
	rm.notifier.LobbyChanged()
}

// broadcastLocked sends one message to both seats and all spectators.
func (rm *RoomManager) broadcastLocked(room *Room, msgType string, payload interface{}) {
	for _, token := range room.tokensLocked() {
		rm.notifier.ToToken(token, msgType, payload)
	}
}

// broadcastStateLocked pushes the post-move snapshot to everyone in the
// room. Clients replace their state with it wholesale.
func (rm *RoomManager) broadcastStateLocked(room *Room) {
	msg := GameStateMessage{
		RoomCode: room.Code,
		State:    room.Game.GetClientState(),
		Timer:    room.Timer,
	}
	rm.broadcastLocked(room, "game_state", msg)
}
