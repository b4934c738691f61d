//go:build linux

package encoder

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Watcher feeds a Counter from a quadrature encoder: A raises events, B's
// level at that moment gives the direction.
type Watcher struct {
	a, b *gpiocdev.Line
}

func Watch(chip string, pinA, pinB int, debounce time.Duration, c *Counter) (*Watcher, error) {
	b, err := gpiocdev.RequestLine(chip, pinB, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("request encoder B pin %d: %w", pinB, err)
	}
	w := &Watcher{b: b}
	handler := func(evt gpiocdev.LineEvent) {
		if evt.Type != gpiocdev.LineEventRisingEdge {
			return
		}
		v, err := w.b.Value()
		if err != nil {
			return
		}
		if v == 0 {
			c.Inc()
		} else {
			c.Dec()
		}
	}
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(handler),
	}
	if debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(debounce))
	}
	a, err := gpiocdev.RequestLine(chip, pinA, opts...)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("request encoder A pin %d: %w", pinA, err)
	}
	w.a = a
	return w, nil
}

func (w *Watcher) Close() error {
	errA := w.a.Close()
	errB := w.b.Close()
	if errA != nil {
		return errA
	}
	return errB
}
