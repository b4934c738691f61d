// Package settings holds the operator-editable profile slots and oven-mode
// defaults, and persists them as YAML.
package settings

import (
	"time"

	"github.com/Agrid-Dev/reflowctl/internal/profile"
)

const NumSlots = 4

// Slot is one named reflow profile as the operator edits it.
type Slot struct {
	Name         string `json:"name" yaml:"name"`
	PreheatTemp  int    `json:"preheat_temp" yaml:"preheat_temp"`
	SoakTemp     int    `json:"soak_temp" yaml:"soak_temp"`
	PeakTemp     int    `json:"peak_temp" yaml:"peak_temp"`
	DwellSeconds int    `json:"dwell_seconds" yaml:"dwell_seconds"`
}

type Range struct {
	Min, Max int
}

func (r Range) Clamp(v int) int { return min(max(v, r.Min), r.Max) }

type SlotBounds struct {
	Preheat, Soak, Peak, Dwell Range
}

var (
	leadFreeBounds = SlotBounds{
		Preheat: Range{100, 200},
		Soak:    Range{120, 220},
		Peak:    Range{180, 250},
		Dwell:   Range{20, 120},
	}
	customBounds = SlotBounds{
		Preheat: Range{100, 180},
		Soak:    Range{120, 200},
		Peak:    Range{160, 230},
		Dwell:   Range{20, 120},
	}
)

// BoundsFor returns the editable range of each field of slot i. The
// lead-free slot allows hotter values than the others.
func BoundsFor(i int) SlotBounds {
	if i == 0 {
		return leadFreeBounds
	}
	return customBounds
}

func DefaultSlots() []Slot {
	return []Slot{
		{Name: "Lead-Free", PreheatTemp: 150, SoakTemp: 180, PeakTemp: 220, DwellSeconds: 60},
		{Name: "Leaded", PreheatTemp: 130, SoakTemp: 160, PeakTemp: 190, DwellSeconds: 50},
		{Name: "Custom 1", PreheatTemp: 130, SoakTemp: 160, PeakTemp: 190, DwellSeconds: 50},
		{Name: "Custom 2", PreheatTemp: 130, SoakTemp: 160, PeakTemp: 190, DwellSeconds: 50},
	}
}

func (s Slot) Clamp(b SlotBounds) Slot {
	s.PreheatTemp = b.Preheat.Clamp(s.PreheatTemp)
	s.SoakTemp = b.Soak.Clamp(s.SoakTemp)
	s.PeakTemp = b.Peak.Clamp(s.PeakTemp)
	s.DwellSeconds = b.Dwell.Clamp(s.DwellSeconds)
	return s
}

// Phase timing shared by every slot.
const (
	preheatTime = 180 * time.Second
	soakTime    = 120 * time.Second
	peakMin     = 70 * time.Second
	peakMax     = 120 * time.Second
	coolTime    = 90 * time.Second
	coolOffset  = 15
)

// Params resolves the slot into the phase tuples the state machine runs.
func (s Slot) Params() []profile.PhaseParams {
	dwell := time.Duration(s.DwellSeconds) * time.Second
	preheat, soak, peak := float64(s.PreheatTemp), float64(s.SoakTemp), float64(s.PeakTemp)
	return []profile.PhaseParams{
		{Name: "Preheat", StartTemp: 0, EndTemp: preheat, MinDuration: preheatTime, MaxDuration: preheatTime},
		{Name: "Soak", StartTemp: preheat, EndTemp: soak, MinDuration: soakTime, MaxDuration: soakTime},
		{Name: "Peak", StartTemp: soak, EndTemp: peak, MinDuration: peakMin, MaxDuration: peakMax, HoldAtEndTemp: true},
		{Name: "Dwell", StartTemp: peak, EndTemp: peak, MinDuration: dwell, MaxDuration: dwell},
		{Name: "Cool", StartTemp: peak - coolOffset, EndTemp: 0, MinDuration: coolTime, MaxDuration: coolTime, HoldAtEndTemp: true},
	}
}

// Hold is the oven-mode preset: a fixed temperature for a bounded time.
type Hold struct {
	TargetTemp int `json:"target_temp" yaml:"target_temp"`
	Minutes    int `json:"minutes" yaml:"minutes"`
}

var (
	holdTempRange    = Range{0, 250}
	holdMinutesRange = Range{1, 1440}
)

func DefaultHold() Hold {
	return Hold{TargetTemp: 80, Minutes: 60}
}

func (h Hold) Clamp() Hold {
	h.TargetTemp = holdTempRange.Clamp(h.TargetTemp)
	h.Minutes = holdMinutesRange.Clamp(h.Minutes)
	return h
}

func (h Hold) Duration() time.Duration {
	return time.Duration(h.Minutes) * time.Minute
}
