package outbox

import "time"

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type sequenceClock struct {
	times []time.Time
	idx   int
}

func (c *sequenceClock) Now() time.Time {
	if c.idx >= len(c.times) {
		return c.times[len(c.times)-1]
	}
	now := c.times[c.idx]
	c.idx++

	return now
}
