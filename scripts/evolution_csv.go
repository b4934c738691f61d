package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/Agrid-Dev/reflowctl/internal/clock"
	"github.com/Agrid-Dev/reflowctl/internal/oven"
	"github.com/Agrid-Dev/reflowctl/internal/pwm"
	"github.com/Agrid-Dev/reflowctl/internal/sensor"
	"github.com/Agrid-Dev/reflowctl/internal/settings"
)

const (
	tickInterval = 10 * time.Millisecond
	logInterval  = time.Second
	maxRunTime   = 15 * time.Minute
)

// SimulateReflow runs one profile slot against the thermal simulator on a
// fake clock and writes one CSV row per logInterval.
func SimulateReflow(slot settings.Slot, filename string) error {
	clk := clock.NewFake(0)
	sim, err := sensor.NewSimulator(sensor.DefaultThermalParams(), clk)
	if err != nil {
		return fmt.Errorf("failed to create simulator: %v", err)
	}
	o, err := oven.New(oven.DefaultConfig(), oven.Deps{
		Clock:    clk,
		Sensor:   sensor.NewFiltered(sim, clk, sensor.DefaultMinInterval, sensor.DefaultAlpha),
		Actuator: pwm.New(sim.Primary(), sim.Secondary(), pwm.DefaultPeriod, clk),
	})
	if err != nil {
		return fmt.Errorf("failed to create oven: %v", err)
	}

	// Create CSV file
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write CSV header
	if err := writer.Write([]string{"Seconds", "Phase", "Measured", "Setpoint", "Output", "FeedForward", "P", "I", "D", "Primary", "Secondary"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	if err := o.StartReflow(slot.Name, slot.Params()); err != nil {
		return fmt.Errorf("failed to start reflow: %v", err)
	}

	var since time.Duration
	for elapsed := time.Duration(0); elapsed < maxRunTime; elapsed += tickInterval {
		o.Tick()
		if o.Idle() {
			break
		}
		if since += tickInterval; since < logInterval {
			clk.Advance(tickInterval)
			continue
		}
		since = 0

		s := o.Get()
		if err := writer.Write([]string{
			fmt.Sprintf("%.0f", s.Elapsed.Seconds()),
			s.PhaseName,
			fmt.Sprintf("%.2f", s.Measured),
			fmt.Sprintf("%.2f", s.Setpoint),
			fmt.Sprintf("%.1f", s.Output),
			fmt.Sprintf("%.1f", s.FeedForward),
			fmt.Sprintf("%.2f", s.Terms.P),
			fmt.Sprintf("%.2f", s.Terms.I),
			fmt.Sprintf("%.2f", s.Terms.D),
			fmt.Sprintf("%d", s.PrimaryDuty),
			fmt.Sprintf("%d", s.SecondaryDuty),
		}); err != nil {
			return fmt.Errorf("failed to write CSV record: %v", err)
		}
		clk.Advance(tickInterval)
	}

	s := o.Get()
	fmt.Printf("%s: %s, mean |error| %.2f °C, decayed max %.2f °C over %d samples\n",
		slot.Name, s.Result, s.ErrorStats.MeanAbs, s.ErrorStats.DecayedMax, s.ErrorStats.Count)
	return nil
}

func main() {
	for i, slot := range settings.DefaultSlots()[:2] {
		if err := SimulateReflow(slot, fmt.Sprintf("reflow-%d.csv", i)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}
