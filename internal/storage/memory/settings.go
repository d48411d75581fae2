package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
)

// Settings is an in-memory option table.
type Settings struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ menu.Settings = (*Settings)(nil)

// NewSettings constructs an empty Settings.
func NewSettings() *Settings {
	return &Settings{values: make(map[string]string)}
}

// Bool returns the stored flag or def when unset or unparsable.
func (s *Settings) Bool(ctx context.Context, key string, def bool) (bool, error) {
	raw, err := s.String(ctx, key, "")
	if err != nil || raw == "" {
		return def, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, nil
	}
	return v, nil
}

// SetBool stores a flag.
func (s *Settings) SetBool(ctx context.Context, key string, value bool) error {
	return s.SetString(ctx, key, strconv.FormatBool(value))
}

// String returns the stored value or def when unset.
func (s *Settings) String(_ context.Context, key string, def string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return def, nil
	}
	return v, nil
}

// SetString stores a value.
func (s *Settings) SetString(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
