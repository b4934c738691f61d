// Package clock provides the millisecond time base shared by the control core.
//
// Timestamps are a free-running 32-bit millisecond counter that wraps after
// roughly 49.7 days. Elapsed time must always be computed with Sub, which
// relies on unsigned difference arithmetic and stays correct across a wrap.
package clock

import (
	"sync/atomic"
	"time"
)

// Millis is a wrapping millisecond timestamp.
type Millis uint32

// Sub returns the time elapsed from earlier to m.
func (m Millis) Sub(earlier Millis) time.Duration {
	return time.Duration(uint32(m-earlier)) * time.Millisecond
}

// Add returns m advanced by d, wrapping like the underlying counter.
func (m Millis) Add(d time.Duration) Millis {
	return m + Millis(uint32(d.Milliseconds()))
}

// Source yields the current timestamp.
type Source interface {
	Now() Millis
}

// System is a Source backed by the monotonic wall clock.
type System struct {
	origin time.Time
}

func NewSystem() *System {
	return &System{origin: time.Now()}
}

func (s *System) Now() Millis {
	return Millis(uint32(time.Since(s.origin).Milliseconds()))
}

// Fake is a manually driven Source for tests and simulations.
type Fake struct {
	now atomic.Uint32
}

func NewFake(start Millis) *Fake {
	f := &Fake{}
	f.now.Store(uint32(start))
	return f
}

func (f *Fake) Now() Millis { return Millis(f.now.Load()) }

func (f *Fake) Set(m Millis) { f.now.Store(uint32(m)) }

func (f *Fake) Advance(d time.Duration) Millis {
	return Millis(f.now.Add(uint32(d.Milliseconds())))
}
