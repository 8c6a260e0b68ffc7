package server

import (
	"sync"
	"time"

	"damas-server/internal/draughts"
)

type TimerMode string

const (
	// TimerPerMove resets a single countdown at the start of each turn.
	TimerPerMove TimerMode = "per_move"
	// TimerPerMatch gives each color its own bank, debited one second at a
	// time while that color holds the turn.
	TimerPerMatch TimerMode = "per_match"
)

func (m TimerMode) Valid() bool {
	return m == TimerPerMove || m == TimerPerMatch
}

// TimerState is the authoritative clock state for one room. Exactly one
// discipline per room, fixed at creation.
type TimerState struct {
	Mode      TimerMode `json:"mode"`
	Remaining int       `json:"remaining,omitempty"`
	LightBank int       `json:"lightBank,omitempty"`
	DarkBank  int       `json:"darkBank,omitempty"`
}

func NewTimerState(mode TimerMode, seconds int) TimerState {
	if mode == TimerPerMatch {
		return TimerState{Mode: mode, LightBank: seconds, DarkBank: seconds}
	}
	return TimerState{Mode: TimerPerMove, Remaining: seconds}
}

// roomClock drives one room's countdown. Stop is idempotent; the tick
// goroutine exits on the next select.
type roomClock struct {
	stop chan struct{}
	once sync.Once
}

func (c *roomClock) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// startClockLocked launches the tick goroutine for a room. Caller holds the
// room lock. Any previous clock is stopped first so only one ticker can
// ever fire for a room.
func (rm *RoomManager) startClockLocked(room *Room) {
	if room.clock != nil {
		room.clock.Stop()
	}
	clock := &roomClock{stop: make(chan struct{})}
	room.clock = clock
	room.clockPaused = false

	interval := rm.tickInterval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !rm.tickRoom(room, clock) {
					return
				}
			case <-clock.stop:
				return
			}
		}
	}()
}

// tickRoom advances the room clock by one second. It is the single
// authoritative source of timeout forfeits: expiry concludes the room under
// the same lock that guards every other termination path. Returns false
// once the clock is obsolete.
func (rm *RoomManager) tickRoom(room *Room, clock *roomClock) bool {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.clock != clock || room.Lifecycle != LifecycleActive {
		return false
	}
	if room.clockPaused || room.Game == nil {
		return true
	}

	onClock := room.Game.Turn
	expired := false

	switch room.Timer.Mode {
	case TimerPerMove:
		room.Timer.Remaining--
		expired = room.Timer.Remaining <= 0
	case TimerPerMatch:
		if onClock == draughts.Light {
			room.Timer.LightBank--
			expired = room.Timer.LightBank <= 0
		} else {
			room.Timer.DarkBank--
			expired = room.Timer.DarkBank <= 0
		}
	}

	rm.broadcastLocked(room, "timer_update", TimerUpdateNotification{
		RoomCode: room.Code,
		Timer:    room.Timer,
	})

	if expired {
		winner := room.seatByColor(onClock.Opponent())
		rm.concludeLocked(room, MatchOutcome{
			Winner: winner.Identity,
			Reason: "time expired",
		})
		return false
	}
	return true
}

// resetTurnClockLocked applies the per-move discipline after a completed
// turn. Per-match banks carry over untouched.
func (room *Room) resetTurnClockLocked() {
	if room.Timer.Mode == TimerPerMove {
		room.Timer.Remaining = room.TimerSeconds
	}
}

// pauseClockLocked freezes the countdown without losing remaining time.
func (room *Room) pauseClockLocked() {
	room.clockPaused = true
}

func (room *Room) resumeClockLocked() {
	room.clockPaused = false
}

func (room *Room) stopClockLocked() {
	if room.clock != nil {
		room.clock.Stop()
		room.clock = nil
	}
}
