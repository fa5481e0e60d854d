package outbox

import "time"

// Clock is the time source behind the relay's schedule and claim cutoff:
// each run claims events with an occurrence time at or before Clock.Now().
// Swapping it out lets tests pin the cutoff.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock reads the system time in UTC, matching the store's
// timestamptz columns.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
