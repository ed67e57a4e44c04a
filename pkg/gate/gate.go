package gate

import (
	"crypto/subtle"
	"fmt"
	"time"
)

const (
	// DefaultAttempts is the number of PIN tries until lockout.
	DefaultAttempts = 3
	// DefaultRestartDelay is the time between an accepted PIN and the restart.
	DefaultRestartDelay = 5 * time.Second
)

// State is the reset gate state.
type State int

const (
	Active State = iota
	Locked
	PendingRestart
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Locked:
		return "locked"
	case PendingRestart:
		return "pending-restart"
	}
	return "unknown"
}

// Result classifies one PIN attempt.
type Result int

const (
	Accepted Result = iota
	Rejected
	LockedOut
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case LockedOut:
		return "locked-out"
	}
	return "unknown"
}

// Outcome is the answer to one PIN attempt. Remaining is meaningful for Rejected.
type Outcome struct {
	Result    Result
	Remaining int
}

// Deleter wipes persisted configuration.
type Deleter interface {
	Delete() error
}

// Gate guards the configuration reset with a PIN and a bounded number of
// attempts. Lockout and pending restart are terminal until the process restarts.
// Times are uptime offsets from the device clock.
type Gate struct {
	pin       string
	remaining int
	delay     time.Duration
	deleter   Deleter

	state    State
	deadline time.Duration
}

// New creates a gate for pin.
func New(pin string, attempts int, delay time.Duration, deleter Deleter) *Gate {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if delay <= 0 {
		delay = DefaultRestartDelay
	}

	return &Gate{
		pin:       pin,
		remaining: attempts,
		delay:     delay,
		deleter:   deleter,
		state:     Active,
	}
}

// Attempt checks candidate at uptime now. A correct PIN while active deletes
// the persisted configuration once and schedules the restart. An error means
// the configuration could not be deleted; the gate then stays active.
func (g *Gate) Attempt(candidate string, now time.Duration) (Outcome, error) {
	match := subtle.ConstantTimeCompare([]byte(candidate), []byte(g.pin)) == 1

	switch g.state {
	case Locked:
		return Outcome{Result: LockedOut}, nil

	case PendingRestart:
		// Restart already scheduled, nothing left to do
		if match {
			return Outcome{Result: Accepted}, nil
		}
		return Outcome{Result: Rejected, Remaining: g.remaining}, nil
	}

	if match {
		if err := g.deleter.Delete(); err != nil {
			return Outcome{}, fmt.Errorf("failed to reset configuration: %w", err)
		}
		g.state = PendingRestart
		g.deadline = now + g.delay
		return Outcome{Result: Accepted}, nil
	}

	g.remaining--
	if g.remaining <= 0 {
		g.remaining = 0
		g.state = Locked
	}
	return Outcome{Result: Rejected, Remaining: g.remaining}, nil
}

// RestartDue reports whether an accepted reset is waiting and its deadline has passed.
func (g *Gate) RestartDue(now time.Duration) bool {
	return g.state == PendingRestart && now > g.deadline
}

// State returns the current state.
func (g *Gate) State() State {
	return g.state
}

// Remaining returns the attempts left before lockout.
func (g *Gate) Remaining() int {
	return g.remaining
}

// Deadline returns the scheduled restart time when pending.
func (g *Gate) Deadline() (time.Duration, bool) {
	return g.deadline, g.state == PendingRestart
}
