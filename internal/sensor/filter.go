// Package sensor acquires the oven temperature: raw thermocouple readers, a
// noise filter and a rate gate in front of them, and a thermal simulator for
// running without hardware.
package sensor

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Agrid-Dev/reflowctl/internal/clock"
)

const (
	DefaultAlpha       = 0.05
	DefaultMinInterval = 250 * time.Millisecond
	medianWindow       = 3
)

// Reader is a raw temperature source in °C.
type Reader interface {
	ReadCelsius() (float64, error)
}

// Filter rejects single-sample spikes with a median of the last three raw
// values, then smooths with an exponential moving average seeded from the
// first value.
type Filter struct {
	alpha  float64
	window [medianWindow]float64
	n      int
	next   int
	ema    float64
	primed bool
}

func NewFilter(alpha float64) *Filter {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Filter{alpha: alpha}
}

func (f *Filter) Add(v float64) float64 {
	f.window[f.next] = v
	f.next = (f.next + 1) % medianWindow
	if f.n < medianWindow {
		f.n++
	}

	m := f.median()
	if !f.primed {
		f.ema = m
		f.primed = true
	} else {
		f.ema += f.alpha * (m - f.ema)
	}
	return f.ema
}

func (f *Filter) Value() float64 { return f.ema }

func (f *Filter) median() float64 {
	buf := make([]float64, f.n)
	copy(buf, f.window[:f.n])
	sort.Float64s(buf)
	if f.n%2 == 1 {
		return buf[f.n/2]
	}
	return (buf[f.n/2-1] + buf[f.n/2]) / 2
}

// Filtered gates a Reader to at most one raw read per interval and filters
// what it reads. Between reads it returns the last filtered value.
type Filtered struct {
	mu       sync.Mutex
	src      Reader
	clk      clock.Source
	interval time.Duration
	filter   *Filter
	last     clock.Millis
	value    float64
	err      error
	read     bool
}

func NewFiltered(src Reader, clk clock.Source, interval time.Duration, alpha float64) *Filtered {
	if interval <= 0 {
		interval = DefaultMinInterval
	}
	return &Filtered{src: src, clk: clk, interval: interval, filter: NewFilter(alpha)}
}

// Read returns the filtered temperature. A failed or non-finite raw read is
// returned as an error and does not touch the filter.
func (f *Filtered) Read() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clk.Now()
	if f.read && now.Sub(f.last) < f.interval {
		return f.value, f.err
	}
	f.last = now
	f.read = true

	raw, err := f.src.ReadCelsius()
	if err == nil && (math.IsNaN(raw) || math.IsInf(raw, 0)) {
		err = fmt.Errorf("%w: %v", ErrInvalidReading, raw)
	}
	if err != nil {
		f.err = err
		return f.value, err
	}
	f.err = nil
	f.value = f.filter.Add(raw)
	return f.value, nil
}
