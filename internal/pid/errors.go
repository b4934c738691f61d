package pid

import "errors"

var (
	ErrInvalidCoefficients = errors.New("PID coefficients must be greater or equal to zero")
	ErrInvalidLimits       = errors.New("output minimum must be strictly lower than maximum")
	ErrInvalidSampleTime   = errors.New("sample time must be positive")
	ErrInvalidFilter       = errors.New("derivative filter time constant must be positive")
)
