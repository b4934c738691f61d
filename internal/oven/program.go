package oven

import (
	"time"

	"github.com/Agrid-Dev/reflowctl/internal/clock"
	"github.com/Agrid-Dev/reflowctl/internal/profile"
)

// program is the setpoint generator behind a run.
type program interface {
	update(measured float64, now clock.Millis)
	setpoint(now clock.Millis) float64
	slope(now clock.Millis, lookahead time.Duration) float64
	finished(now clock.Millis) (bool, Result)
	phase() phaseInfo
}

type phaseInfo struct {
	Index     int
	Name      string
	StartTemp float64
	EndTemp   float64
}

type reflowProgram struct {
	p *profile.Profile
}

func (r reflowProgram) update(measured float64, now clock.Millis) { r.p.Update(measured, now) }

func (r reflowProgram) setpoint(now clock.Millis) float64 { return r.p.Setpoint(now) }

func (r reflowProgram) slope(now clock.Millis, lookahead time.Duration) float64 {
	return r.p.FeedforwardSlope(now, lookahead)
}

func (r reflowProgram) finished(clock.Millis) (bool, Result) {
	return r.p.IsComplete(), ResultComplete
}

func (r reflowProgram) phase() phaseInfo {
	idx := r.p.CurrentPhase()
	if idx == profile.Complete {
		return phaseInfo{Index: -1, Name: r.p.PhaseName()}
	}
	ph := r.p.Phase(int(idx))
	return phaseInfo{Index: int(idx), Name: ph.Name, StartTemp: ph.StartTemp, EndTemp: ph.EndTemp}
}

// holdProgram keeps a fixed setpoint until its duration runs out.
type holdProgram struct {
	target   float64
	duration time.Duration
	start    clock.Millis
}

func (h *holdProgram) update(float64, clock.Millis) {}

func (h *holdProgram) setpoint(clock.Millis) float64 { return h.target }

func (h *holdProgram) slope(clock.Millis, time.Duration) float64 { return 0 }

func (h *holdProgram) finished(now clock.Millis) (bool, Result) {
	return now.Sub(h.start) >= h.duration, ResultExpired
}

func (h *holdProgram) remaining(now clock.Millis) time.Duration {
	return max(h.duration-now.Sub(h.start), 0)
}

func (h *holdProgram) phase() phaseInfo {
	return phaseInfo{Index: 0, Name: "Hold", StartTemp: h.target, EndTemp: h.target}
}
