//go:build !linux

package encoder

import (
	"errors"
	"time"
)

type Watcher struct{}

func Watch(chip string, pinA, pinB int, debounce time.Duration, c *Counter) (*Watcher, error) {
	return nil, errors.New("encoder: not supported on this platform (requires Linux)")
}

func (w *Watcher) Close() error { return nil }
