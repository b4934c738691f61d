package testutil

import (
	"github.com/Agrid-Dev/reflowctl/internal/oven"
	"github.com/Agrid-Dev/reflowctl/internal/profile"
	"github.com/Agrid-Dev/reflowctl/internal/settings"
)

// FakeOvenService is a reusable fake implementing ports.OvenService.
// Put ONLY what multiple test packages need here.
type FakeOvenService struct {
	S     oven.Snapshot
	C     profile.ChartSpec
	Slots []settings.Slot
	Sel   int
	H     settings.Hold

	SetProfileCalled bool
	SetProfileSlot   int
	SetProfileArg    settings.Slot
	SetProfileErr    error

	StartReflowCalled bool
	StartReflowArg    int
	StartReflowErr    error

	StartHoldCalled  bool
	StartHoldTarget  float64
	StartHoldMinutes int
	StartHoldErr     error

	AbortCalled bool
}

func NewFakeOvenService() *FakeOvenService {
	return &FakeOvenService{
		S: oven.Snapshot{
			Mode:           oven.ModeReflow,
			SensorOK:       true,
			Profile:        "Lead-Free",
			PhaseIndex:     1,
			PhaseName:      "Soak",
			PhaseStartTemp: 150,
			PhaseEndTemp:   180,
			Measured:       162.5,
			Setpoint:       165,
			Error:          -2.5,
			Output:         64,
			PrimaryDuty:    100,
			SecondaryDuty:  28,
			PrimaryOn:      true,
		},
		C:     profile.New(settings.DefaultSlots()[0].Params()).Chart(),
		Slots: settings.DefaultSlots(),
		H:     settings.DefaultHold(),
	}
}

func (f *FakeOvenService) Get() oven.Snapshot { return f.S }

func (f *FakeOvenService) Chart() profile.ChartSpec { return f.C }

func (f *FakeOvenService) Profiles() []settings.Slot {
	return append([]settings.Slot(nil), f.Slots...)
}

func (f *FakeOvenService) Selected() int { return f.Sel }

func (f *FakeOvenService) HoldDefaults() settings.Hold { return f.H }

func (f *FakeOvenService) SetProfile(slot int, p settings.Slot) (settings.Slot, error) {
	f.SetProfileCalled = true
	f.SetProfileSlot = slot
	f.SetProfileArg = p
	if f.SetProfileErr != nil {
		return settings.Slot{}, f.SetProfileErr
	}
	if slot < 0 || slot >= len(f.Slots) {
		return settings.Slot{}, settings.ErrSlotOutOfRange
	}
	f.Slots[slot] = p
	return p, nil
}

func (f *FakeOvenService) StartReflow(slot int) error {
	f.StartReflowCalled = true
	f.StartReflowArg = slot
	if f.StartReflowErr != nil {
		return f.StartReflowErr
	}
	f.Sel = slot
	f.S.Mode = oven.ModeReflow
	f.S.Profile = f.Slots[slot].Name
	return nil
}

func (f *FakeOvenService) StartHold(target float64, minutes int) error {
	f.StartHoldCalled = true
	f.StartHoldTarget = target
	f.StartHoldMinutes = minutes
	if f.StartHoldErr != nil {
		return f.StartHoldErr
	}
	f.S.Mode = oven.ModeHold
	f.S.Setpoint = target
	return nil
}

func (f *FakeOvenService) Abort() {
	f.AbortCalled = true
	f.S.Result = oven.ResultAborted
	f.S.Draining = true
}
