// Package gpio drives the heater solid-state relays.
package gpio

// Pin is a digital output line. It satisfies pwm.Output.
type Pin interface {
	Set(on bool) error
	Close() error
}
