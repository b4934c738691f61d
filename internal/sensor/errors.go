package sensor

import "errors"

var (
	ErrNoReading                   = errors.New("no temperature reading available")
	ErrStaleReading                = errors.New("temperature reading is stale")
	ErrInvalidReading              = errors.New("invalid temperature reading")
	ErrNegativeHeatLossCoefficient = errors.New("heat loss coefficient must be greater or equal to zero")
	ErrNegativeHeatRate            = errors.New("element heat rate must be greater or equal to zero")
)
