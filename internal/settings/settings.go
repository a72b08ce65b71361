// Package settings owns the dashboard's user preferences: the colour theme
// and the OCR mode last confirmed by the backend. Values are loaded once at
// start and saved on every change.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/anpr.dashboard/internal/backend"
	"github.com/banshee-data/anpr.dashboard/internal/monitoring"
	"github.com/banshee-data/anpr.dashboard/internal/notify"
)

// Theme is the dashboard colour scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ErrInvalidTheme is returned for themes other than light and dark.
var ErrInvalidTheme = errors.New("invalid theme")

// ParseTheme validates s.
func ParseTheme(s string) (Theme, error) {
	switch t := Theme(s); t {
	case ThemeLight, ThemeDark:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTheme, s)
	}
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Persisted keys.
const (
	KeyTheme   = "theme"
	KeyOCRMode = "ocr_mode"
)

// Persister stores settings as key/value pairs.
type Persister interface {
	LoadSettings(ctx context.Context) (map[string]string, error)
	SaveSetting(ctx context.Context, key, value string) error
}

// OCRClient is the part of the backend client the store needs.
type OCRClient interface {
	GetOCRMode(ctx context.Context) (backend.OCRMode, error)
	SetOCRMode(ctx context.Context, mode backend.OCRMode) (backend.OCRMode, error)
}

// Values is a copy of the current settings.
type Values struct {
	Theme   Theme
	OCRMode backend.OCRMode
}

// Store holds the settings. A nil Persister keeps them in memory only.
type Store struct {
	persister Persister
	notifier  notify.Notifier

	mu     sync.Mutex
	values Values
}

func NewStore(p Persister, n notify.Notifier) *Store {
	if n == nil {
		n = notify.Discard
	}
	return &Store{
		persister: p,
		notifier:  n,
		values:    Values{Theme: ThemeLight, OCRMode: backend.OCRModeLocal},
	}
}

// Load reads persisted values. Unknown or invalid values are ignored.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	kv, err := s.persister.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := kv[KeyTheme]; ok {
		if t, err := ParseTheme(v); err == nil {
			s.values.Theme = t
		} else {
			monitoring.Warnf("ignoring stored theme: %v", err)
		}
	}
	if v, ok := kv[KeyOCRMode]; ok {
		if m, err := backend.ParseOCRMode(v); err == nil {
			s.values.OCRMode = m
		} else {
			monitoring.Warnf("ignoring stored OCR mode: %v", err)
		}
	}
	return nil
}

// Values returns the current settings.
func (s *Store) Values() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values
}

func (s *Store) Theme() Theme { return s.Values().Theme }

func (s *Store) OCRMode() backend.OCRMode { return s.Values().OCRMode }

// SetTheme validates and saves t.
func (s *Store) SetTheme(ctx context.Context, t Theme) error {
	if _, err := ParseTheme(string(t)); err != nil {
		return err
	}
	s.mu.Lock()
	s.values.Theme = t
	s.mu.Unlock()
	return s.save(ctx, KeyTheme, string(t))
}

// ToggleTheme switches between light and dark and returns the new theme.
func (s *Store) ToggleTheme(ctx context.Context) (Theme, error) {
	s.mu.Lock()
	t := s.values.Theme.Toggle()
	s.values.Theme = t
	s.mu.Unlock()
	return t, s.save(ctx, KeyTheme, string(t))
}

// SetOCRMode records a mode confirmed by the backend.
func (s *Store) SetOCRMode(ctx context.Context, m backend.OCRMode) error {
	if _, err := backend.ParseOCRMode(string(m)); err != nil {
		return err
	}
	s.mu.Lock()
	s.values.OCRMode = m
	s.mu.Unlock()
	return s.save(ctx, KeyOCRMode, string(m))
}

// ToggleOCRMode asks the backend to switch to the other mode and stores
// the mode it echoes back. The stored mode is unchanged on failure.
func (s *Store) ToggleOCRMode(ctx context.Context, c OCRClient) (backend.OCRMode, error) {
	target := s.OCRMode().Toggle()
	echoed, err := c.SetOCRMode(ctx, target)
	if err != nil {
		s.notifier.Error("Failed to switch OCR mode")
		return s.OCRMode(), err
	}
	if _, perr := backend.ParseOCRMode(string(echoed)); perr != nil {
		s.notifier.Error("Failed to switch OCR mode")
		return s.OCRMode(), fmt.Errorf("backend echoed %w", perr)
	}
	if err := s.SetOCRMode(ctx, echoed); err != nil {
		return echoed, err
	}
	s.notifier.Success("Switched to " + echoed.Label())
	return echoed, nil
}

// SyncOCRMode adopts the backend's current mode.
func (s *Store) SyncOCRMode(ctx context.Context, c OCRClient) error {
	m, err := c.GetOCRMode(ctx)
	if err != nil {
		return err
	}
	return s.SetOCRMode(ctx, m)
}

func (s *Store) save(ctx context.Context, key, value string) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.SaveSetting(ctx, key, value); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}
