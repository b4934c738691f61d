// Package pid wraps go.einride.tech/pid behind the narrow regulator contract
// used by the control loop: output limits, a fixed sample time, bumpless start
// and access to the individual P, I and D contributions.
package pid

import (
	"time"

	"go.einride.tech/pid"

	"github.com/Agrid-Dev/reflowctl/internal/clock"
)

type Params struct {
	Kp float64 `json:"kp" yaml:"kp"`
	Ki float64 `json:"ki" yaml:"ki"`
	Kd float64 `json:"kd" yaml:"kd"`

	MinOutput float64 `json:"min_output" yaml:"min_output"`
	MaxOutput float64 `json:"max_output" yaml:"max_output"`

	SampleTime       time.Duration `json:"sample_time" yaml:"sample_time"`
	AntiWindupGain   float64       `json:"anti_windup_gain" yaml:"anti_windup_gain"`
	DerivativeFilter time.Duration `json:"derivative_filter" yaml:"derivative_filter"` // low-pass time constant on the D term
}

// DefaultParams are the gains the oven was tuned with.
func DefaultParams() Params {
	return Params{
		Kp:               1.75,
		Ki:               0.025,
		Kd:               45,
		MinOutput:        0,
		MaxOutput:        100,
		SampleTime:       4 * time.Second,
		AntiWindupGain:   1,
		DerivativeFilter: time.Second,
	}
}

func (p *Params) Validate() error {
	if p.Kp < 0 || p.Ki < 0 || p.Kd < 0 || p.AntiWindupGain < 0 {
		return ErrInvalidCoefficients
	}
	if p.MinOutput >= p.MaxOutput {
		return ErrInvalidLimits
	}
	if p.SampleTime <= 0 {
		return ErrInvalidSampleTime
	}
	if p.DerivativeFilter <= 0 {
		return ErrInvalidFilter
	}
	return nil
}

// Terms are the contributions of the last computed step.
type Terms struct {
	P float64 `json:"p"`
	I float64 `json:"i"`
	D float64 `json:"d"`
}

type Regulator struct {
	params   Params
	c        pid.AntiWindupController
	setpoint float64
	output   float64
	last     clock.Millis
	started  bool
}

func New(params Params) (*Regulator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	r := &Regulator{params: params}
	r.configure()
	return r, nil
}

func (r *Regulator) configure() {
	r.c.Config = pid.AntiWindupControllerConfig{
		ProportionalGain:    r.params.Kp,
		IntegralGain:        r.params.Ki,
		DerivativeGain:      r.params.Kd,
		AntiWindUpGain:      r.params.AntiWindupGain,
		LowPassTimeConstant: r.params.DerivativeFilter,
		MinOutput:           r.params.MinOutput,
		MaxOutput:           r.params.MaxOutput,
	}
}

func (r *Regulator) Params() Params { return r.params }

func (r *Regulator) SetOutputLimits(lo, hi float64) error {
	if lo >= hi {
		return ErrInvalidLimits
	}
	r.params.MinOutput, r.params.MaxOutput = lo, hi
	r.configure()
	r.output = r.clamp(r.output)
	return nil
}

func (r *Regulator) SetSampleTime(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidSampleTime
	}
	r.params.SampleTime = d
	return nil
}

func (r *Regulator) SetTunings(kp, ki, kd float64) error {
	if kp < 0 || ki < 0 || kd < 0 {
		return ErrInvalidCoefficients
	}
	r.params.Kp, r.params.Ki, r.params.Kd = kp, ki, kd
	r.configure()
	return nil
}

// Start resets the controller so that its first output continues from
// initialOutput instead of jumping.
func (r *Regulator) Start(measured, initialOutput, setpoint float64, now clock.Millis) {
	r.c.Reset()
	r.setpoint = setpoint
	r.output = r.clamp(initialOutput)
	r.c.State.ControlError = setpoint - measured
	r.c.State.ControlSignal = r.output
	r.c.State.UnsaturatedControlSignal = r.output
	if r.params.Ki > 0 {
		r.c.State.ControlErrorIntegral = r.output / r.params.Ki
	}
	r.last = now
	r.started = true
}

func (r *Regulator) SetSetpoint(sp float64) { r.setpoint = sp }

func (r *Regulator) Setpoint() float64 { return r.setpoint }

// Run computes a new output once per sample time and returns the previous
// output between samples.
func (r *Regulator) Run(measured float64, now clock.Millis) float64 {
	if !r.started {
		r.Start(measured, r.output, r.setpoint, now)
		return r.output
	}
	dt := now.Sub(r.last)
	if dt < r.params.SampleTime {
		return r.output
	}
	r.c.Update(pid.AntiWindupControllerInput{
		ReferenceSignal:  r.setpoint,
		ActualSignal:     measured,
		SamplingInterval: dt,
	})
	r.output = r.c.State.ControlSignal
	r.last = now
	return r.output
}

func (r *Regulator) Output() float64 { return r.output }

func (r *Regulator) Terms() Terms {
	return Terms{
		P: r.params.Kp * r.c.State.ControlError,
		I: r.params.Ki * r.c.State.ControlErrorIntegral,
		D: r.params.Kd * r.c.State.ControlErrorDerivative,
	}
}

func (r *Regulator) clamp(v float64) float64 {
	return min(max(v, r.params.MinOutput), r.params.MaxOutput)
}
