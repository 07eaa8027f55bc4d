package stm

import "sync/atomic"

// Clock is the single monotonically increasing global version counter.
// It supplies snapshot timestamps at begin and commit timestamps at
// publish.
type Clock struct {
	v atomic.Uint64
}

func (c *Clock) load() uint64 {
	return c.v.Load()
}

// fetchAddOne increments the clock and returns the new value, mirroring
// a single fetch-and-increment per committing write transaction.
func (c *Clock) fetchAddOne() uint64 {
	return c.v.Add(1)
}

// reset is only ever called from inside the quiescence barrier during
// clock rollover; no transaction may be active while this runs.
func (c *Clock) reset() {
	c.v.Store(0)
}
