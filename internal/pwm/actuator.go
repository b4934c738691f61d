// Package pwm time-slices a fixed period into on and off portions for the two
// heating outputs. Requested duty changes only take effect at the next cycle
// boundary, both outputs are switched on together at that boundary and only
// ever switched off inside a cycle.
package pwm

import (
	"time"

	"github.com/Agrid-Dev/reflowctl/internal/clock"
)

const DefaultPeriod = time.Second

// Output is the write side of one heating element.
type Output interface {
	Set(on bool) error
}

const (
	Primary = iota
	Secondary
	numOutputs
)

// Actuator must be serviced with Process far more often than its period.
// It is not safe for concurrent use.
type Actuator struct {
	outputs [numOutputs]Output
	clk     clock.Source
	period  time.Duration

	requested  [numOutputs]int
	latched    [numOutputs]int
	on         [numOutputs]bool
	cycleStart clock.Millis
	running    bool
	err        error
}

func New(primary, secondary Output, period time.Duration, clk clock.Source) *Actuator {
	if period < time.Millisecond {
		period = DefaultPeriod
	}
	return &Actuator{
		outputs: [numOutputs]Output{primary, secondary},
		clk:     clk,
		period:  period,
	}
}

func (a *Actuator) Period() time.Duration { return a.period }

// SetDuty records the duty for the next cycle, clamped to [0,100].
func (a *Actuator) SetDuty(primary, secondary int) {
	a.requested[Primary] = clampDuty(primary)
	a.requested[Secondary] = clampDuty(secondary)
}

func (a *Actuator) Requested() (primary, secondary int) {
	return a.requested[Primary], a.requested[Secondary]
}

func (a *Actuator) Latched() (primary, secondary int) {
	return a.latched[Primary], a.latched[Secondary]
}

func (a *Actuator) Energized() (primary, secondary bool) {
	return a.on[Primary], a.on[Secondary]
}

// Idle reports that nothing is energized and nothing is requested.
func (a *Actuator) Idle() bool {
	for i := range numOutputs {
		if a.on[i] || a.requested[i] > 0 {
			return false
		}
	}
	return true
}

// Err returns the last output write failure, if any.
func (a *Actuator) Err() error { return a.err }

// Process advances the cycle and switches outputs as needed.
func (a *Actuator) Process() {
	now := a.clk.Now()
	if !a.running || now.Sub(a.cycleStart) >= a.period {
		a.startCycle(now)
	}

	pct := int(now.Sub(a.cycleStart) * 100 / a.period)
	for i := range numOutputs {
		if a.on[i] && pct >= a.latched[i] {
			a.write(i, false)
		}
	}
}

// ForceOff de-energizes both outputs immediately and clears the requests.
// Switching off early never violates the cycle contract.
func (a *Actuator) ForceOff() {
	a.requested = [numOutputs]int{}
	a.latched = [numOutputs]int{}
	for i := range numOutputs {
		if a.on[i] {
			a.write(i, false)
		}
	}
}

func (a *Actuator) startCycle(now clock.Millis) {
	a.cycleStart = now
	a.running = true
	a.latched = a.requested
	for i := range numOutputs {
		want := a.latched[i] > 0
		if want != a.on[i] {
			a.write(i, want)
		}
	}
}

func (a *Actuator) write(i int, on bool) {
	if err := a.outputs[i].Set(on); err != nil {
		a.err = err
	}
	a.on[i] = on
}

func clampDuty(d int) int {
	return min(max(d, 0), 100)
}
