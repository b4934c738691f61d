// Package encoder counts rotary encoder detents. The edge handler is the only
// writer; the control loop only ever loads a snapshot.
package encoder

import "sync/atomic"

type Counter struct {
	n atomic.Int64
}

func (c *Counter) Inc() { c.n.Add(1) }

func (c *Counter) Dec() { c.n.Add(-1) }

func (c *Counter) Load() int64 { return c.n.Load() }

// Tracker turns the free-running count into per-read deltas on the consumer
// side without writing back to the counter.
type Tracker struct {
	src  interface{ Load() int64 }
	last int64
}

func NewTracker(src interface{ Load() int64 }) *Tracker {
	return &Tracker{src: src, last: src.Load()}
}

// Delta returns the detents turned since the previous call.
func (t *Tracker) Delta() int64 {
	cur := t.src.Load()
	d := cur - t.last
	t.last = cur
	return d
}
