package gpio

import "sync"

// FakePin is a test double that records every state it is driven to.
type FakePin struct {
	mu          sync.Mutex
	on          bool
	transitions []bool

	// SetError, if set, is returned by Set. The state is still recorded.
	SetError error
	Closed   bool
}

func NewFakePin() *FakePin {
	return &FakePin{}
}

func (f *FakePin) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = on
	f.transitions = append(f.transitions, on)
	return f.SetError
}

// On reports the last driven state.
func (f *FakePin) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// Transitions returns a copy of every state written so far.
func (f *FakePin) Transitions() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.transitions...)
}

func (f *FakePin) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = false
	f.Closed = true
	return nil
}
