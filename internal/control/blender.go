// Package control blends the reactive PID term with a feedforward term
// derived from the profile slope, clamps the result to an actuation range and
// splits it across the two heating elements.
package control

import (
	"fmt"
	"math"
	"time"
)

type Config struct {
	LookAhead time.Duration `json:"look_ahead" yaml:"look_ahead"`
	// MaxHeatRate is the fastest achievable ramp in °C/s at full power.
	MaxHeatRate float64 `json:"max_heat_rate" yaml:"max_heat_rate"`
	// BaseLoadDivisor scales the setpoint into the holding-power term. Zero disables it.
	BaseLoadDivisor float64 `json:"base_load_divisor" yaml:"base_load_divisor"`
	// Smoothing is the weight kept from the previous feedforward value. Zero replaces it.
	Smoothing    float64 `json:"smoothing" yaml:"smoothing"`
	StatsDecay   float64 `json:"stats_decay" yaml:"stats_decay"`
	MinPlausible float64 `json:"min_plausible" yaml:"min_plausible"`
	MaxPlausible float64 `json:"max_plausible" yaml:"max_plausible"`
}

func DefaultConfig() Config {
	return Config{
		LookAhead:       15 * time.Second,
		MaxHeatRate:     100.0 / 110.0,
		BaseLoadDivisor: 10,
		Smoothing:       0,
		StatsDecay:      0.999,
		MinPlausible:    -40,
		MaxPlausible:    350,
	}
}

func (c *Config) Validate() error {
	if c.LookAhead < 0 {
		return ErrInvalidLookAhead
	}
	if c.MaxHeatRate <= 0 {
		return ErrInvalidHeatRate
	}
	if c.Smoothing < 0 || c.Smoothing >= 1 {
		return ErrInvalidSmoothing
	}
	if c.StatsDecay < 0 || c.StatsDecay > 1 {
		return ErrInvalidDecay
	}
	if c.MinPlausible >= c.MaxPlausible {
		return ErrInvalidPlausible
	}
	return nil
}

// Input is what the loop gathered for one sample.
type Input struct {
	Setpoint  float64
	Measured  float64
	PIDOutput float64
	Slope     float64 // °C/s, from the profile look-ahead
}

type Result struct {
	FeedForward float64 // smoothed
	Output      float64 // 0..100
	Primary     int
	Secondary   int
	Fault       error
}

type Blender struct {
	cfg    Config
	acc    float64
	primed bool
	stats  ErrorStats
}

func NewBlender(cfg Config) (*Blender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Blender{cfg: cfg}, nil
}

func (b *Blender) Config() Config { return b.cfg }

// Reset clears the feedforward accumulator and the statistics for a new run.
func (b *Blender) Reset() {
	b.acc = 0
	b.primed = false
	b.stats = ErrorStats{}
}

// Check rejects readings a working thermocouple cannot produce.
func (b *Blender) Check(measured float64) error {
	if math.IsNaN(measured) || math.IsInf(measured, 0) ||
		measured < b.cfg.MinPlausible || measured > b.cfg.MaxPlausible {
		return fmt.Errorf("%w: %v", ErrImplausibleReading, measured)
	}
	return nil
}

// FeedForward is the raw, unsmoothed feedforward power for a setpoint and slope.
func (b *Blender) FeedForward(setpoint, slope float64) float64 {
	ff := slope / b.cfg.MaxHeatRate * 100
	if b.cfg.BaseLoadDivisor > 0 {
		ff += setpoint / b.cfg.BaseLoadDivisor
	}
	return ff
}

// Step runs one sample. On an implausible reading it returns a zero output
// with Fault set and leaves its state untouched.
func (b *Blender) Step(in Input) Result {
	if err := b.Check(in.Measured); err != nil {
		return Result{Fault: err}
	}

	ff := b.FeedForward(in.Setpoint, in.Slope)
	if !b.primed {
		b.acc = ff
		b.primed = true
	} else {
		b.acc = b.cfg.Smoothing*b.acc + (1-b.cfg.Smoothing)*ff
	}

	out := min(max(in.PIDOutput+b.acc, 0), 100)
	b.stats.add(in.Measured-in.Setpoint, b.cfg.StatsDecay)

	primary, secondary := SplitDuty(out)
	return Result{
		FeedForward: b.acc,
		Output:      out,
		Primary:     primary,
		Secondary:   secondary,
	}
}

func (b *Blender) Stats() ErrorStats { return b.stats }

// SplitDuty stages the two elements: the primary takes the lower half of the
// range scaled to full duty, the secondary only engages once the primary is
// saturated.
func SplitDuty(output float64) (primary, secondary int) {
	output = min(max(output, 0), 100)
	if output <= 50 {
		return int(math.Round(output * 2)), 0
	}
	return 100, int(math.Round((output - 50) * 2))
}
