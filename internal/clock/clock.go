// Package clock provides the time source used by expiry logic.
// Freeze and IP-block expiry are pure functions of the injected now,
// which keeps them testable without sleeping.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns a Clock backed by time.Now.
func System() Clock { return systemClock{} }

// Fixed is a settable Clock for tests.
type Fixed struct {
	T time.Time
}

// Now returns the fixed time.
func (f *Fixed) Now() time.Time { return f.T }

// Advance moves the fixed time forward.
func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }
