// Package service binds the oven session to the persisted profile slots and
// is what the transport controllers talk to.
package service

import (
	"log/slog"
	"math"
	"time"

	"github.com/Agrid-Dev/reflowctl/internal/oven"
	"github.com/Agrid-Dev/reflowctl/internal/profile"
	"github.com/Agrid-Dev/reflowctl/internal/settings"
)

type Service struct {
	oven  *oven.Oven
	store *settings.Store
	log   *slog.Logger
}

func New(o *oven.Oven, store *settings.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{oven: o, store: store, log: log.With("module", "service")}
}

func (s *Service) Get() oven.Snapshot { return s.oven.Get() }

func (s *Service) Chart() profile.ChartSpec { return s.oven.Chart() }

func (s *Service) Profiles() []settings.Slot { return s.store.Slots() }

func (s *Service) Selected() int { return s.store.Selected() }

func (s *Service) HoldDefaults() settings.Hold { return s.store.Hold() }

// SetProfile stores p in the given slot after clamping it to the slot
// bounds. A running reflow keeps the phases it was started with.
func (s *Service) SetProfile(slot int, p settings.Slot) (settings.Slot, error) {
	stored, err := s.store.SetSlot(slot, p)
	if err != nil {
		return stored, err
	}
	s.log.Info("profile updated", "slot", slot, "name", stored.Name)
	return stored, nil
}

// StartReflow runs the profile in the given slot and remembers it as the
// selected one.
func (s *Service) StartReflow(slot int) error {
	p, err := s.store.Slot(slot)
	if err != nil {
		return err
	}
	if err := s.oven.StartReflow(p.Name, p.Params()); err != nil {
		return err
	}
	if err := s.store.Select(slot); err != nil {
		s.log.Warn("could not persist selected slot", "slot", slot, "error", err)
	}
	return nil
}

// StartHold runs oven mode and remembers target and minutes as the new
// defaults.
func (s *Service) StartHold(target float64, minutes int) error {
	if err := s.oven.StartHold(target, time.Duration(minutes)*time.Minute); err != nil {
		return err
	}
	h := settings.Hold{TargetTemp: int(math.Round(target)), Minutes: minutes}
	if _, err := s.store.SetHold(h); err != nil {
		s.log.Warn("could not persist hold defaults", "error", err)
	}
	return nil
}

func (s *Service) Abort() { s.oven.Abort() }
