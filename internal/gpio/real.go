//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealPin drives an output line through the Linux GPIO character device.
type RealPin struct {
	line *gpiocdev.Line
}

// NewRealPin requests offset on chip as an output, initially inactive.
// With activeLow the physical level is inverted, for relays that energize on
// a low input.
func NewRealPin(chip string, offset int, activeLow bool) (*RealPin, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer("reflowctl")}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request output %s:%d: %w", chip, offset, err)
	}
	return &RealPin{line: line}, nil
}

func (p *RealPin) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := p.line.SetValue(v); err != nil {
		return fmt.Errorf("set line %d: %w", p.line.Offset(), err)
	}
	return nil
}

// Close drives the line inactive and releases it.
func (p *RealPin) Close() error {
	var errs []error
	if err := p.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("deactivate line: %w", err))
	}
	if err := p.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
