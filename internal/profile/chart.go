package profile

import "time"

const (
	chartTimeMargin = time.Minute
	chartTempMargin = 25.0
)

// Breakpoint is the end of a phase on the designed curve.
type Breakpoint struct {
	Phase string        `json:"phase"`
	At    time.Duration `json:"at"`
	Temp  float64       `json:"temp"`
	Hold  bool          `json:"hold"`
}

// ChartSpec carries what a renderer needs to draw the target curve and the
// live trace without knowing the state machine.
type ChartSpec struct {
	MinTemp     float64       `json:"min_temp"`
	MaxTemp     float64       `json:"max_temp"`
	Total       time.Duration `json:"total"`
	StartTemp   float64       `json:"start_temp"`
	Breakpoints []Breakpoint  `json:"breakpoints"`
}

func (p *Profile) Chart() ChartSpec {
	spec := ChartSpec{
		Total:       p.TotalDuration() + chartTimeMargin,
		Breakpoints: make([]Breakpoint, 0, len(p.phases)),
	}
	if len(p.phases) == 0 {
		spec.MaxTemp = chartTempMargin
		return spec
	}
	spec.StartTemp = p.phases[0].StartTemp

	hottest := p.phases[0].StartTemp
	coldest := p.phases[0].StartTemp
	var at time.Duration
	for i := range p.phases {
		ph := &p.phases[i]
		at += ph.MinDuration
		spec.Breakpoints = append(spec.Breakpoints, Breakpoint{
			Phase: ph.Name,
			At:    at,
			Temp:  ph.EndTemp,
			Hold:  ph.HoldAtEndTemp,
		})
		hottest = max(hottest, ph.StartTemp, ph.EndTemp)
		coldest = min(coldest, ph.StartTemp, ph.EndTemp)
	}
	spec.MinTemp = min(coldest, 0)
	spec.MaxTemp = hottest + chartTempMargin
	return spec
}
