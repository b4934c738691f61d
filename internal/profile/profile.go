// Package profile implements the reflow phase state machine: it turns an
// ordered list of phases into a time-varying setpoint and decides when each
// phase, and the whole run, is finished.
package profile

import (
	"strconv"
	"time"

	"github.com/Agrid-Dev/reflowctl/internal/clock"
)

// MaxPhases bounds the number of phases a profile holds. Extra phases are
// dropped.
const MaxPhases = 5

// PhaseIndex is the cursor into a profile, or Complete.
type PhaseIndex int

// Complete is the absorbing terminal state.
const Complete PhaseIndex = -1

func (i PhaseIndex) String() string {
	if i == Complete {
		return "complete"
	}
	return strconv.Itoa(int(i))
}

type Option func(*Profile)

// WithAchievedRatio overrides DefaultAchievedRatio.
func WithAchievedRatio(r float64) Option {
	return func(p *Profile) {
		if r > 0 && r <= 1 {
			p.ratio = r
		}
	}
}

// Profile is not safe for concurrent use; its owner serialises access.
type Profile struct {
	ratio       float64
	phases      []Phase
	current     PhaseIndex
	running     bool
	reflowStart clock.Millis
}

func New(params []PhaseParams, opts ...Option) *Profile {
	p := &Profile{ratio: DefaultAchievedRatio}
	for _, o := range opts {
		o(p)
	}
	p.SetPhases(params)
	return p
}

// SetPhases replaces the phase list and stops any run in progress.
func (p *Profile) SetPhases(params []PhaseParams) {
	if len(params) > MaxPhases {
		params = params[:MaxPhases]
	}
	p.phases = make([]Phase, len(params))
	for i, pp := range params {
		p.phases[i] = newPhase(pp, p.ratio)
	}
	p.current = 0
	p.running = false
	p.reflowStart = 0
}

// Params returns the normalized phase tuples.
func (p *Profile) Params() []PhaseParams {
	out := make([]PhaseParams, len(p.phases))
	for i := range p.phases {
		out[i] = p.phases[i].PhaseParams
	}
	return out
}

func (p *Profile) Len() int { return len(p.phases) }

// Phase returns a copy of phase i.
func (p *Profile) Phase(i int) Phase { return p.phases[i] }

// StartReflow resets every phase and makes now the time origin of the run.
// Calling it again restarts the run from scratch.
func (p *Profile) StartReflow(now clock.Millis) {
	for i := range p.phases {
		p.phases[i].reset()
	}
	p.reflowStart = now
	p.running = true
	if len(p.phases) == 0 {
		p.current = Complete
		return
	}
	p.current = 0
	p.phases[0].stamp(now)
}

func (p *Profile) Running() bool { return p.running }

// Update evaluates the active phase's completion predicate against the
// measured temperature and advances at most one phase. It reports whether
// the cursor moved.
func (p *Profile) Update(measured float64, now clock.Millis) bool {
	if !p.running || p.current == Complete {
		return false
	}
	ph := &p.phases[p.current]
	if !ph.Started {
		ph.stamp(now)
	}
	if !ph.done(measured, ph.Elapsed(now)) {
		return false
	}
	ph.Completed = true

	next := p.current + 1
	if int(next) >= len(p.phases) {
		p.current = Complete
		return true
	}
	p.current = next
	p.phases[next].stamp(now)
	return true
}

func (p *Profile) CurrentPhase() PhaseIndex { return p.current }

func (p *Profile) IsComplete() bool { return p.current == Complete }

// PhaseName is the active phase's label, "Complete" once finished.
func (p *Profile) PhaseName() string {
	if p.current == Complete {
		return "Complete"
	}
	if len(p.phases) == 0 {
		return ""
	}
	return p.phases[p.current].Name
}

// Elapsed is the time since StartReflow.
func (p *Profile) Elapsed(now clock.Millis) time.Duration {
	if !p.running {
		return 0
	}
	return now.Sub(p.reflowStart)
}

// TotalDuration is the designed run length: the sum of minimum durations.
func (p *Profile) TotalDuration() time.Duration {
	var total time.Duration
	for i := range p.phases {
		total += p.phases[i].MinDuration
	}
	return total
}

// Setpoint is the temperature the oven should be at now: the end
// temperature of a hold phase, otherwise the ideal curve. A phase that
// overruns its minimum duration does not shift the curve.
func (p *Profile) Setpoint(now clock.Millis) float64 {
	if len(p.phases) == 0 {
		return 0
	}
	if p.current == Complete {
		return p.phases[len(p.phases)-1].EndTemp
	}
	if ph := &p.phases[p.current]; ph.HoldAtEndTemp {
		return ph.EndTemp
	}
	return p.IdealTemp(now)
}

// IdealTemp is the designed curve evaluated at the time since the run
// started, independent of how the phases actually progressed. A point on a
// boundary belongs to the phase ending there.
func (p *Profile) IdealTemp(now clock.Millis) float64 {
	if len(p.phases) == 0 {
		return 0
	}
	elapsed := p.Elapsed(now)
	var start time.Duration
	for i := range p.phases {
		ph := &p.phases[i]
		end := start + ph.MinDuration
		if elapsed <= end {
			return ph.interpolate(elapsed - start)
		}
		start = end
	}
	return p.phases[len(p.phases)-1].EndTemp
}

// FeedforwardSlope returns the designed ramp rate (°C/s) of the phase the
// schedule will be in lookahead from now. A point exactly on a boundary
// belongs to the upcoming phase; a point past the end uses the last phase.
func (p *Profile) FeedforwardSlope(now clock.Millis, lookahead time.Duration) float64 {
	if len(p.phases) == 0 {
		return 0
	}
	target := p.Elapsed(now) + lookahead
	var end time.Duration
	for i := range p.phases {
		end += p.phases[i].MinDuration
		if target < end {
			return p.phases[i].Slope()
		}
	}
	return p.phases[len(p.phases)-1].Slope()
}
