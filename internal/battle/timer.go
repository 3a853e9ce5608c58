package battle

import "github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"

// DefaultFreezeSeconds is how long the freezeTimer power-up suspends the countdown.
const DefaultFreezeSeconds = 10

// TimerEvent is what a single tick produced.
type TimerEvent int

const (
	TimerIdle TimerEvent = iota
	TimerTicked
	TimerFrozenTick
	TimerFreezeEnded
	TimerExpired
)

// RoundTimer is the per-round countdown. It owns two mutually exclusive loops:
// the main loop decrements remaining while not frozen, the freeze loop
// decrements its own counter while frozen and leaves remaining paused.
// Both loops advance only through Tick, and a cancelled timer ignores ticks.
type RoundTimer struct {
	remaining int
	running   bool

	frozen          bool
	freezeRemaining int
}

// Start resets the countdown to limit and cancels any freeze still running.
func (t *RoundTimer) Start(limit int) {
	t.remaining = limit
	t.running = true
	t.frozen = false
	t.freezeRemaining = 0
}

// Cancel stops both loops. Ticks after Cancel are no-ops until the next Start.
func (t *RoundTimer) Cancel() {
	t.running = false
	t.frozen = false
	t.freezeRemaining = 0
}

// Freeze suspends the main loop for seconds ticks. It reports false when the
// timer is not running, already frozen, or seconds is not positive.
func (t *RoundTimer) Freeze(seconds int) bool {
	if !t.running || t.frozen || seconds <= 0 {
		return false
	}
	t.frozen = true
	t.freezeRemaining = seconds
	return true
}

// Tick advances whichever loop currently owns the clock by one second.
func (t *RoundTimer) Tick() TimerEvent {
	if !t.running {
		return TimerIdle
	}

	if t.frozen {
		t.freezeRemaining--
		if t.freezeRemaining > 0 {
			return TimerFrozenTick
		}
		t.frozen = false
		t.freezeRemaining = 0
		return TimerFreezeEnded
	}

	if t.remaining > 0 {
		t.remaining--
	}
	if t.remaining == 0 {
		t.running = false
		return TimerExpired
	}
	return TimerTicked
}

// Remaining returns the seconds left on the main loop.
func (t *RoundTimer) Remaining() int { return t.remaining }

// Running reports whether ticks are being consumed.
func (t *RoundTimer) Running() bool { return t.running }

// Frozen reports whether the freeze loop owns the clock.
func (t *RoundTimer) Frozen() bool { return t.frozen }

func (t *RoundTimer) state() domain.TimerState {
	return domain.TimerState{
		RemainingSeconds: t.remaining,
		IsFrozen:         t.frozen,
		FreezeRemaining:  t.freezeRemaining,
	}
}
