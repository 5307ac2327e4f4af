package monitor

import "time"

type refreshKind int

const (
	refreshNone refreshKind = iota
	refreshPartial
	refreshFull
)

// refreshClock decides which refresh tier is due. It bundles the two last-run
// timestamps with their intervals so the scheduling policy can be exercised
// with an injected clock.
type refreshClock struct {
	fullEvery    time.Duration
	partialEvery time.Duration
	lastFull     time.Time
	lastPartial  time.Time
	now          func() time.Time
}

func newRefreshClock(full, partial time.Duration) *refreshClock {
	return &refreshClock{
		fullEvery:    full,
		partialEvery: partial,
		now:          time.Now,
	}
}

// due reports the refresh tier owed right now. A full refresh takes
// precedence over a partial one, and the very first call is always full.
func (c *refreshClock) due() refreshKind {
	now := c.now()
	if c.lastFull.IsZero() || now.Sub(c.lastFull) >= c.fullEvery {
		return refreshFull
	}
	if now.Sub(c.lastPartial) >= c.partialEvery {
		return refreshPartial
	}
	return refreshNone
}

// mark records that a refresh of the given tier just ran. A full refresh also
// resets the partial timer; it subsumes the cheaper pass.
func (c *refreshClock) mark(kind refreshKind) {
	now := c.now()
	switch kind {
	case refreshFull:
		c.lastFull = now
		c.lastPartial = now
	case refreshPartial:
		c.lastPartial = now
	}
}

// force makes the next due() report a full refresh regardless of elapsed time.
func (c *refreshClock) force() {
	c.lastFull = time.Time{}
}

func (c *refreshClock) setIntervals(full, partial time.Duration) {
	if full > 0 {
		c.fullEvery = full
	}
	if partial > 0 {
		c.partialEvery = partial
	}
}
