package oven

import (
	"time"

	"github.com/google/uuid"

	"github.com/Agrid-Dev/reflowctl/internal/clock"
	"github.com/Agrid-Dev/reflowctl/internal/control"
	"github.com/Agrid-Dev/reflowctl/internal/pid"
)

// Snapshot is the status handed to displays and transports.
type Snapshot struct {
	RunID    string
	Mode     Mode
	Result   Result
	Draining bool
	Fault    string
	SensorOK bool

	Profile        string
	PhaseIndex     int
	PhaseName      string
	PhaseStartTemp float64
	PhaseEndTemp   float64

	Measured    float64
	Setpoint    float64
	Error       float64
	Output      float64
	FeedForward float64
	Terms       pid.Terms

	PrimaryDuty   int
	SecondaryDuty int
	PrimaryOn     bool
	SecondaryOn   bool
	ErrorStats    control.ErrorStats
	Elapsed       time.Duration
	HoldRemaining time.Duration
	SensorError   string
}

func (o *Oven) refresh(now clock.Millis) {
	s := Snapshot{
		Mode:     o.mode,
		Result:   o.result,
		Draining: o.draining,
		Fault:    o.fault,
		SensorOK: o.sensorErr == nil,
		Profile:  o.profileName,
		Measured: o.measured,
		Setpoint: o.setpoint,
		Output:   o.last.Output,

		FeedForward: o.last.FeedForward,
		ErrorStats:  o.blender.Stats(),
		PhaseIndex:  -1,
	}
	if o.runID != uuid.Nil {
		s.RunID = o.runID.String()
	}
	if o.sensorErr != nil {
		s.SensorError = o.sensorErr.Error()
	}
	if o.prog != nil {
		ph := o.prog.phase()
		s.PhaseIndex = ph.Index
		s.PhaseName = ph.Name
		s.PhaseStartTemp = ph.StartTemp
		s.PhaseEndTemp = ph.EndTemp
		s.Error = o.measured - o.setpoint
		s.Terms = o.reg.Terms()
		s.Elapsed = now.Sub(o.runStart)
		if h, ok := o.prog.(*holdProgram); ok {
			s.HoldRemaining = h.remaining(now)
			s.Setpoint = h.target
		}
	}
	s.PrimaryDuty, s.SecondaryDuty = o.act.Requested()
	s.PrimaryOn, s.SecondaryOn = o.act.Energized()
	o.s = s
}
