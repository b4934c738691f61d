package control

import "math"

// ErrorStats tracks how far the measured temperature strays from the setpoint.
type ErrorStats struct {
	MeanAbs    float64 `json:"mean_abs"`
	DecayedMax float64 `json:"decayed_max"`
	Count      int     `json:"count"`
	sum        float64
}

func (s *ErrorStats) add(diff, decay float64) {
	d := math.Abs(diff)
	s.sum += d
	s.Count++
	s.MeanAbs = s.sum / float64(s.Count)
	s.DecayedMax = s.DecayedMax*decay + d*(1-decay)
}
