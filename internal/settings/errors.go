package settings

import "errors"

var (
	ErrSlotOutOfRange = errors.New("profile slot out of range")
	ErrEmptyName      = errors.New("profile name must not be empty")
)
