package sensor

import (
	"sync"
	"time"

	"github.com/Agrid-Dev/reflowctl/internal/clock"
)

const simStep = 10 * time.Millisecond

type ThermalParams struct {
	Ambient float64 `json:"ambient" yaml:"ambient"`
	// Coefficient is the heat loss to ambient per second per degree of difference. 0 for no loss.
	Coefficient float64 `json:"coefficient" yaml:"coefficient"`
	// PrimaryRate and SecondaryRate are the heating rates (°C/s) of each element when on.
	PrimaryRate   float64 `json:"primary_rate" yaml:"primary_rate"`
	SecondaryRate float64 `json:"secondary_rate" yaml:"secondary_rate"`
	// Lag is the time constant between element power and oven air. 0 disables it.
	Lag time.Duration `json:"lag" yaml:"lag"`
}

// DefaultThermalParams model an oven that ramps at about 0.9 °C/s at full
// power and loses heat in line with a holding power of a tenth of the
// temperature, which is what the default control config assumes. The two
// elements are equal so that the staged duty split is linear in output.
func DefaultThermalParams() ThermalParams {
	return ThermalParams{
		Ambient:       25,
		Coefficient:   0.001,
		PrimaryRate:   0.45,
		SecondaryRate: 0.45,
		Lag:           20 * time.Second,
	}
}

func (p *ThermalParams) Validate() error {
	if p.Coefficient < 0 {
		return ErrNegativeHeatLossCoefficient
	}
	if p.PrimaryRate < 0 || p.SecondaryRate < 0 {
		return ErrNegativeHeatRate
	}
	return nil
}

// DeltaTemperature is the heat lost to (or gained from) ambient over dt.
func (p *ThermalParams) DeltaTemperature(indoor float64, dt time.Duration) float64 {
	return p.Coefficient * (p.Ambient - indoor) * dt.Seconds()
}

// Simulator models the oven as a lagged heat input against a loss to
// ambient. Its two elements satisfy pwm.Output, and it is itself a Reader,
// so the whole control path can run against it without hardware.
type Simulator struct {
	mu     sync.Mutex
	params ThermalParams
	clk    clock.Source
	temp   float64
	heat   float64
	on     [2]bool
	last   clock.Millis
}

func NewSimulator(params ThermalParams, clk clock.Source) (*Simulator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Simulator{params: params, clk: clk, temp: params.Ambient, last: clk.Now()}, nil
}

func (s *Simulator) ReadCelsius() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.clk.Now())
	return s.temp, nil
}

// SetTemperature overrides the simulated temperature.
func (s *Simulator) SetTemperature(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.clk.Now())
	s.temp = v
}

func (s *Simulator) Primary() *Element   { return &Element{sim: s, idx: 0} }
func (s *Simulator) Secondary() *Element { return &Element{sim: s, idx: 1} }

// Element is one simulated heating element.
type Element struct {
	sim *Simulator
	idx int
}

func (e *Element) Set(on bool) error {
	e.sim.mu.Lock()
	defer e.sim.mu.Unlock()
	e.sim.advance(e.sim.clk.Now())
	e.sim.on[e.idx] = on
	return nil
}

// advance integrates from the last update to now with the element states
// held constant over the interval.
func (s *Simulator) advance(now clock.Millis) {
	remaining := now.Sub(s.last)
	s.last = now

	target := 0.0
	if s.on[0] {
		target += s.params.PrimaryRate
	}
	if s.on[1] {
		target += s.params.SecondaryRate
	}
	for remaining > 0 {
		dt := min(remaining, simStep)
		remaining -= dt
		if s.params.Lag > 0 {
			s.heat += (target - s.heat) * dt.Seconds() / s.params.Lag.Seconds()
		} else {
			s.heat = target
		}
		s.temp += s.heat*dt.Seconds() + s.params.DeltaTemperature(s.temp, dt)
	}
}
