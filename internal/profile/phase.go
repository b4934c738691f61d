package profile

import (
	"time"

	"github.com/Agrid-Dev/reflowctl/internal/clock"
)

// DefaultAchievedRatio is the fraction of a phase's end temperature that
// counts as "reached" for completion purposes.
const DefaultAchievedRatio = 0.98

// PhaseParams describes one segment of a thermal profile. It is the tuple
// exchanged with the settings store and the transports.
type PhaseParams struct {
	Name          string        `json:"name" yaml:"name"`
	StartTemp     float64       `json:"start_temp" yaml:"start_temp"`
	EndTemp       float64       `json:"end_temp" yaml:"end_temp"`
	MinDuration   time.Duration `json:"min_duration" yaml:"min_duration"`
	MaxDuration   time.Duration `json:"max_duration" yaml:"max_duration"`
	HoldAtEndTemp bool          `json:"hold_at_end_temp" yaml:"hold_at_end_temp"`
}

// normalize clamps durations to the valid domain: never negative and
// MaxDuration never shorter than MinDuration.
func (p PhaseParams) normalize() PhaseParams {
	p.MinDuration = p.MinDuration.Truncate(time.Millisecond)
	p.MaxDuration = p.MaxDuration.Truncate(time.Millisecond)
	if p.MinDuration < 0 {
		p.MinDuration = 0
	}
	if p.MaxDuration < p.MinDuration {
		p.MaxDuration = p.MinDuration
	}
	return p
}

// Phase is a PhaseParams plus its run-time bookkeeping.
type Phase struct {
	PhaseParams
	AchievedTemp float64
	StartedAt    clock.Millis
	Started      bool
	Completed    bool
}

func newPhase(p PhaseParams, ratio float64) Phase {
	p = p.normalize()
	return Phase{PhaseParams: p, AchievedTemp: p.EndTemp * ratio}
}

func (ph *Phase) reset() {
	ph.StartedAt = 0
	ph.Started = false
	ph.Completed = false
}

func (ph *Phase) stamp(now clock.Millis) {
	ph.StartedAt = now
	ph.Started = true
}

// Elapsed is the time spent in the phase, or zero if it has not started.
func (ph *Phase) Elapsed(now clock.Millis) time.Duration {
	if !ph.Started {
		return 0
	}
	return now.Sub(ph.StartedAt)
}

// Slope is the designed ramp rate in °C/s. A zero-length phase has no ramp.
func (ph *Phase) Slope() float64 {
	if ph.MinDuration <= 0 {
		return 0
	}
	return (ph.EndTemp - ph.StartTemp) / ph.MinDuration.Seconds()
}

// interpolate returns the ideal temperature after elapsed time in the phase.
func (ph *Phase) interpolate(elapsed time.Duration) float64 {
	frac := 1.0
	if ph.MinDuration > 0 {
		frac = float64(elapsed) / float64(ph.MinDuration)
	}
	frac = min(max(frac, 0), 1)
	return ph.StartTemp + (ph.EndTemp-ph.StartTemp)*frac
}

func (ph *Phase) done(measured float64, elapsed time.Duration) bool {
	if elapsed >= ph.MaxDuration {
		return true
	}
	return measured >= ph.AchievedTemp && elapsed >= ph.MinDuration
}
