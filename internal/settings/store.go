package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// File is the on-disk layout.
type File struct {
	Slots    []Slot `yaml:"slots"`
	Hold     Hold   `yaml:"hold"`
	Selected int    `yaml:"selected"`
}

func Default() File {
	return File{Slots: DefaultSlots(), Hold: DefaultHold()}
}

// ensureDefaults fills missing slots and brings every value into range.
func (f *File) ensureDefaults() {
	defaults := DefaultSlots()
	if len(f.Slots) > NumSlots {
		f.Slots = f.Slots[:NumSlots]
	}
	for i := len(f.Slots); i < NumSlots; i++ {
		f.Slots = append(f.Slots, defaults[i])
	}
	for i := range f.Slots {
		if f.Slots[i].Name == "" {
			f.Slots[i].Name = defaults[i].Name
		}
		f.Slots[i] = f.Slots[i].Clamp(BoundsFor(i))
	}
	if f.Hold == (Hold{}) {
		f.Hold = DefaultHold()
	}
	f.Hold = f.Hold.Clamp()
	if f.Selected < 0 || f.Selected >= NumSlots {
		f.Selected = 0
	}
}

// Store is the settings collaborator. With an empty path it keeps
// everything in memory.
type Store struct {
	mu   sync.RWMutex
	path string
	data File
}

// Open loads path, falling back to defaults when the file does not exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: Default()}
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	f.ensureDefaults()
	s.data = f
	return s, nil
}

func (s *Store) Slots() []Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Slot(nil), s.data.Slots...)
}

func (s *Store) Slot(i int) (Slot, error) {
	if i < 0 || i >= NumSlots {
		return Slot{}, fmt.Errorf("%w: %d", ErrSlotOutOfRange, i)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Slots[i], nil
}

// SetSlot clamps slot into the bounds of index i, stores it and persists.
// It returns what was actually stored.
func (s *Store) SetSlot(i int, slot Slot) (Slot, error) {
	if i < 0 || i >= NumSlots {
		return Slot{}, fmt.Errorf("%w: %d", ErrSlotOutOfRange, i)
	}
	if slot.Name == "" {
		return Slot{}, ErrEmptyName
	}
	slot = slot.Clamp(BoundsFor(i))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Slots[i] = slot
	return slot, s.saveLocked()
}

func (s *Store) Selected() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Selected
}

func (s *Store) Select(i int) error {
	if i < 0 || i >= NumSlots {
		return fmt.Errorf("%w: %d", ErrSlotOutOfRange, i)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Selected = i
	return s.saveLocked()
}

func (s *Store) Hold() Hold {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Hold
}

func (s *Store) SetHold(h Hold) (Hold, error) {
	h = h.Clamp()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Hold = h
	return h, s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	raw, err := yaml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
