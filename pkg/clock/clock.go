package clock

import (
	"sync"
	"time"
)

// Clock returns the time elapsed since boot. Values only move forward.
type Clock interface {
	Now() time.Duration
}

// Monotonic measures uptime from the moment it was created.
type Monotonic struct {
	start time.Time
}

// NewMonotonic starts a new uptime clock.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// Now returns the uptime.
func (m *Monotonic) Now() time.Duration {
	return time.Since(m.start)
}

// Fake is a manually driven clock. Step, when set, is added after every Now
// call so that polling loops make progress. Safe for concurrent use.
type Fake struct {
	mu   sync.Mutex
	now  time.Duration
	Step time.Duration
}

// Now returns the current fake uptime.
func (f *Fake) Now() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now
	f.now += f.Step
	return now
}

// Set moves the clock to t.
func (f *Fake) Set(t time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += d
}
