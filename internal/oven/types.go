package oven

import "fmt"

// Mode is what the oven is currently running.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeIdle
	ModeReflow
	ModeHold
)

func (m Mode) Valid() bool {
	return m == ModeIdle || m == ModeReflow || m == ModeHold
}

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeReflow:
		return "reflow"
	case ModeHold:
		return "hold"
	default:
		return "unknown"
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "idle":
		return ModeIdle, nil
	case "reflow":
		return ModeReflow, nil
	case "hold":
		return ModeHold, nil
	default:
		return ModeUnknown, fmt.Errorf("invalid mode: %q", s)
	}
}

// Result is how the last run ended.
type Result int

const (
	ResultNone Result = iota
	ResultComplete
	ResultAborted
	ResultExpired
	ResultFault
)

func (r Result) String() string {
	switch r {
	case ResultComplete:
		return "complete"
	case ResultAborted:
		return "aborted"
	case ResultExpired:
		return "expired"
	case ResultFault:
		return "fault"
	default:
		return "none"
	}
}
