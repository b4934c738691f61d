package profile

import "time"

// Default is the five-phase lead-free curve.
func Default() []PhaseParams {
	return []PhaseParams{
		{Name: "Preheat", StartTemp: 0, EndTemp: 150, MinDuration: 180 * time.Second, MaxDuration: 180 * time.Second},
		{Name: "Soak", StartTemp: 150, EndTemp: 180, MinDuration: 120 * time.Second, MaxDuration: 120 * time.Second},
		{Name: "Peak", StartTemp: 180, EndTemp: 235, MinDuration: 70 * time.Second, MaxDuration: 120 * time.Second, HoldAtEndTemp: true},
		{Name: "Dwell", StartTemp: 235, EndTemp: 235, MinDuration: 30 * time.Second, MaxDuration: 20 * time.Second},
		{Name: "Cool", StartTemp: 220, EndTemp: 0, MinDuration: 90 * time.Second, MaxDuration: 90 * time.Second, HoldAtEndTemp: true},
	}
}
