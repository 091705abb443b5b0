package domain

import "github.com/jonboulle/clockwork"

// clock is a package-level time source so tests can freeze retrieved_at via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source for record conversion. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// NowMillis returns the current time from the package clock in epoch milliseconds.
func NowMillis() int64 {
	return clock.Now().UnixMilli()
}
