// Package prefs persists the user's standing playback preferences. Distinct
// from per-content checkpoints: a quality choice here applies to every
// future session.
package prefs

import (
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// Preferences is the persisted document.
type Preferences struct {
	PreferredQuality string `json:"preferredQuality,omitempty"`
}

// Service reads and writes the preference file through an afero filesystem
// so tests can run against memory.
type Service struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

func NewService(filesystem afero.Fs, path string) *Service {
	if filesystem == nil {
		filesystem = afero.NewOsFs()
	}
	return &Service{fs: filesystem, path: path}
}

// PreferredQuality returns the standing quality choice, or "" when none is
// saved.
func (s *Service) PreferredQuality() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load()
	if err != nil {
		return ""
	}
	return p.PreferredQuality
}

// SetPreferredQuality records a user-initiated quality switch as the
// standing preference for future sessions.
func (s *Service) SetPreferredQuality(label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load()
	if err != nil {
		return err
	}
	p.PreferredQuality = label
	return s.save(p)
}

func (s *Service) load() (Preferences, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Preferences{}, nil
		}
		return Preferences{}, err
	}
	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		// A corrupt preference file is not worth failing playback over.
		return Preferences{}, nil
	}
	return p, nil
}

func (s *Service) save(p Preferences) error {
	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(s.fs, s.path, data, 0o644)
}
