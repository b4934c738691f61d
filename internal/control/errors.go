package control

import "errors"

var (
	ErrImplausibleReading = errors.New("implausible temperature reading")
	ErrInvalidHeatRate    = errors.New("max heat rate must be positive")
	ErrInvalidSmoothing   = errors.New("smoothing must be in [0,1)")
	ErrInvalidDecay       = errors.New("statistics decay must be in [0,1]")
	ErrInvalidPlausible   = errors.New("plausible range minimum must be lower than maximum")
	ErrInvalidLookAhead   = errors.New("look-ahead must not be negative")
)
