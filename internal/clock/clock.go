// Package clock is the single source of wall-clock time for persisted
// timestamps, so tests can pin it.
package clock

import "time"

// NowFunc returns current time. Override in tests for determinism.
var NowFunc = time.Now

// Now is a thin wrapper around NowFunc.
func Now() time.Time { return NowFunc() }

// Freeze pins Now to at and returns a function restoring the previous source.
func Freeze(at time.Time) (restore func()) {
	previous := NowFunc
	NowFunc = func() time.Time { return at }
	return func() { NowFunc = previous }
}
