// Package oven is the controller session: it owns one profile, one PID, one
// feedforward blender and one actuator, and runs them in a fixed order on
// every tick.
package oven

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Agrid-Dev/reflowctl/internal/clock"
	"github.com/Agrid-Dev/reflowctl/internal/control"
	"github.com/Agrid-Dev/reflowctl/internal/encoder"
	"github.com/Agrid-Dev/reflowctl/internal/pid"
	"github.com/Agrid-Dev/reflowctl/internal/profile"
	"github.com/Agrid-Dev/reflowctl/internal/pwm"
)

// Thermometer yields the filtered oven temperature.
type Thermometer interface {
	Read() (float64, error)
}

// Jog is the consumer side of the rotary encoder counter.
type Jog interface {
	Load() int64
}

type Config struct {
	SampleInterval time.Duration  `json:"sample_interval" yaml:"sample_interval"`
	PID            pid.Params     `json:"pid" yaml:"pid"`
	Control        control.Config `json:"control" yaml:"control"`

	// JogStep is the hold target change per encoder detent.
	JogStep         float64       `json:"jog_step" yaml:"jog_step"`
	HoldMinTemp     float64       `json:"hold_min_temp" yaml:"hold_min_temp"`
	HoldMaxTemp     float64       `json:"hold_max_temp" yaml:"hold_max_temp"`
	HoldMaxDuration time.Duration `json:"hold_max_duration" yaml:"hold_max_duration"`
}

func DefaultConfig() Config {
	return Config{
		SampleInterval:  250 * time.Millisecond,
		PID:             pid.DefaultParams(),
		Control:         control.DefaultConfig(),
		JogStep:         1,
		HoldMinTemp:     0,
		HoldMaxTemp:     250,
		HoldMaxDuration: 24 * time.Hour,
	}
}

type Deps struct {
	Clock    clock.Source
	Sensor   Thermometer
	Actuator *pwm.Actuator
	Jog      Jog // optional
	Logger   *slog.Logger
}

type Oven struct {
	mu  sync.RWMutex
	cfg Config
	clk clock.Source
	log *slog.Logger

	sensor  Thermometer
	act     *pwm.Actuator
	reg     *pid.Regulator
	blender *control.Blender
	jog     *encoder.Tracker

	profile     *profile.Profile
	profileName string

	prog     program
	mode     Mode
	draining bool
	result   Result
	fault    string
	runID    uuid.UUID
	runStart clock.Millis

	sampled    bool
	lastSample clock.Millis
	measured   float64
	sensorErr  error
	setpoint   float64
	last       control.Result

	s Snapshot
}

func New(cfg Config, d Deps) (*Oven, error) {
	if cfg.SampleInterval <= 0 {
		return nil, ErrInvalidInterval
	}
	if d.Clock == nil || d.Sensor == nil || d.Actuator == nil {
		return nil, fmt.Errorf("%w: clock, sensor and actuator are required", ErrMissingDependency)
	}
	reg, err := pid.New(cfg.PID)
	if err != nil {
		return nil, fmt.Errorf("pid: %w", err)
	}
	blender, err := control.NewBlender(cfg.Control)
	if err != nil {
		return nil, fmt.Errorf("control: %w", err)
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	o := &Oven{
		cfg:         cfg,
		clk:         d.Clock,
		log:         log.With("module", "oven"),
		sensor:      d.Sensor,
		act:         d.Actuator,
		reg:         reg,
		blender:     blender,
		profile:     profile.New(profile.Default()),
		profileName: "Default",
		mode:        ModeIdle,
	}
	if d.Jog != nil {
		o.jog = encoder.NewTracker(d.Jog)
	}
	o.refresh(o.clk.Now())
	return o, nil
}

// StartReflow loads params and starts a reflow run from the first phase.
// A run already in progress is replaced.
func (o *Oven) StartReflow(name string, params []profile.PhaseParams) error {
	if len(params) == 0 {
		return ErrEmptyProfile
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clk.Now()
	o.profile.SetPhases(params)
	o.profile.StartReflow(now)
	o.profileName = name
	o.begin(ModeReflow, reflowProgram{p: o.profile}, o.profile.Setpoint(now), now)
	o.log.Info("reflow started", "run_id", o.runID, "profile", name, "phases", o.profile.Len())
	return nil
}

// StartHold runs oven mode: hold target for at most duration.
func (o *Oven) StartHold(target float64, duration time.Duration) error {
	if target < o.cfg.HoldMinTemp || target > o.cfg.HoldMaxTemp {
		return fmt.Errorf("%w: %v not in [%v,%v]", ErrTargetOutOfRange, target, o.cfg.HoldMinTemp, o.cfg.HoldMaxTemp)
	}
	if duration <= 0 || duration > o.cfg.HoldMaxDuration {
		return fmt.Errorf("%w: %v", ErrInvalidHoldDuration, duration)
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clk.Now()
	o.begin(ModeHold, &holdProgram{target: target, duration: duration, start: now}, target, now)
	o.log.Info("hold started", "run_id", o.runID, "target", target, "duration", duration)
	return nil
}

func (o *Oven) begin(m Mode, p program, sp float64, now clock.Millis) {
	o.blender.Reset()
	o.reg.Start(o.measured, 0, sp, now)
	o.prog = p
	o.mode = m
	o.draining = false
	o.result = ResultNone
	o.fault = ""
	o.runID = uuid.New()
	o.runStart = now
	o.setpoint = sp
	o.last = control.Result{}
	if o.jog != nil {
		o.jog.Delta()
	}
	// sample on the next tick
	o.sampled = false
	o.refresh(now)
}

// Abort stops the current run. Both duties drop to zero at once; the
// outputs go off once the actuator has been serviced through the current
// cycle.
func (o *Oven) Abort() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.prog == nil {
		return
	}
	o.stop(ResultAborted, "")
	o.refresh(o.clk.Now())
}

func (o *Oven) stop(r Result, reason string) {
	o.act.SetDuty(0, 0)
	o.prog = nil
	o.draining = true
	o.result = r
	o.fault = reason
	o.last = control.Result{}
	if r == ResultFault {
		o.log.Error("run stopped", "run_id", o.runID, "result", r, "reason", reason)
		return
	}
	o.log.Info("run stopped", "run_id", o.runID, "result", r)
}

// Tick runs one loop iteration: a control sample when the sample interval
// has elapsed, then always the actuator service.
func (o *Oven) Tick() {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clk.Now()
	if !o.sampled || now.Sub(o.lastSample) >= o.cfg.SampleInterval {
		o.sample(now)
	}
	o.act.Process()

	if o.draining && o.act.Idle() {
		o.draining = false
		o.mode = ModeIdle
		o.log.Info("outputs de-energized", "run_id", o.runID)
	}
	o.refresh(now)
}

func (o *Oven) sample(now clock.Millis) {
	o.lastSample = now
	o.sampled = true
	o.applyJog()

	measured, err := o.sensor.Read()
	if err == nil {
		err = o.blender.Check(measured)
	}
	if err != nil {
		if o.sensorErr == nil {
			o.log.Warn("sensor fault", "error", err)
		}
		o.sensorErr = err
		if o.prog != nil {
			o.stop(ResultFault, err.Error())
		}
		return
	}
	if o.sensorErr != nil {
		o.log.Info("sensor recovered", "temperature", measured)
	}
	o.sensorErr = nil
	o.measured = measured

	if o.prog == nil {
		return
	}
	before := o.prog.phase().Index
	o.prog.update(measured, now)
	if done, r := o.prog.finished(now); done {
		o.stop(r, "")
		return
	}
	if ph := o.prog.phase(); ph.Index != before {
		o.log.Info("phase advanced", "run_id", o.runID, "phase", ph.Name, "temperature", measured)
	}

	sp := o.prog.setpoint(now)
	o.reg.SetSetpoint(sp)
	out := o.reg.Run(measured, now)
	res := o.blender.Step(control.Input{
		Setpoint:  sp,
		Measured:  measured,
		PIDOutput: out,
		Slope:     o.prog.slope(now, o.cfg.Control.LookAhead),
	})
	o.setpoint = sp
	o.last = res
	o.act.SetDuty(res.Primary, res.Secondary)
}

func (o *Oven) applyJog() {
	if o.jog == nil {
		return
	}
	delta := o.jog.Delta()
	h, ok := o.prog.(*holdProgram)
	if !ok || delta == 0 {
		return
	}
	h.target = min(max(h.target+float64(delta)*o.cfg.JogStep, o.cfg.HoldMinTemp), o.cfg.HoldMaxTemp)
}

// Run ticks the oven every interval until ctx is done, then aborts and keeps
// servicing the actuator until the outputs are off.
func (o *Oven) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.drain(ticker.C)
			return ctx.Err()
		case <-ticker.C:
			o.Tick()
		}
	}
}

func (o *Oven) drain(tick <-chan time.Time) {
	o.Abort()
	deadline := time.After(2 * o.act.Period())
	for !o.Idle() {
		select {
		case <-tick:
			o.Tick()
		case <-deadline:
			o.mu.Lock()
			o.act.ForceOff()
			o.mu.Unlock()
			o.log.Warn("forced outputs off after drain timeout")
			return
		}
	}
}

// Idle reports that no run is active and both outputs are off.
func (o *Oven) Idle() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.prog == nil && o.act.Idle()
}

func (o *Oven) Get() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.s
}

// Chart describes the loaded profile for graph renderers.
func (o *Oven) Chart() profile.ChartSpec {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.profile.Chart()
}
