package ports

import (
	"github.com/Agrid-Dev/reflowctl/internal/oven"
	"github.com/Agrid-Dev/reflowctl/internal/profile"
	"github.com/Agrid-Dev/reflowctl/internal/settings"
)

// OvenService is the control-plane port used by controllers (HTTP/MQTT/Modbus).
type OvenService interface {
	Get() oven.Snapshot
	Chart() profile.ChartSpec

	Profiles() []settings.Slot
	Selected() int
	SetProfile(slot int, p settings.Slot) (settings.Slot, error)
	HoldDefaults() settings.Hold

	StartReflow(slot int) error
	StartHold(target float64, minutes int) error
	Abort()
}
