package oven

import "errors"

var (
	ErrEmptyProfile        = errors.New("profile has no phases")
	ErrTargetOutOfRange    = errors.New("hold target out of range")
	ErrInvalidHoldDuration = errors.New("hold duration out of range")
	ErrInvalidInterval     = errors.New("sample interval must be positive")
	ErrMissingDependency   = errors.New("missing dependency")
)
