package feature

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryProvider keeps flags in process memory.
type MemoryProvider struct {
	mu    sync.RWMutex
	flags map[string]Flag
}

// NewMemoryProvider creates a provider seeded with the given flags.
func NewMemoryProvider(initial ...Flag) (*MemoryProvider, error) {
	p := &MemoryProvider{flags: make(map[string]Flag, len(initial))}
	for _, f := range initial {
		if f.Name == "" {
			return nil, errors.Join(ErrInvalidFlag, errors.New("flag name cannot be empty"))
		}
		if f.UpdatedAt.IsZero() {
			f.UpdatedAt = time.Now()
		}
		p.flags[f.Name] = f
	}
	return p, nil
}

func (m *MemoryProvider) IsEnabled(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.flags[name]
	if !ok {
		return false, ErrFlagNotFound
	}
	return f.Enabled, nil
}

func (m *MemoryProvider) SetEnabled(_ context.Context, name string, enabled bool) error {
	if name == "" {
		return errors.Join(ErrInvalidFlag, errors.New("flag name cannot be empty"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.flags[name]
	f.Name = name
	f.Enabled = enabled
	f.UpdatedAt = time.Now()
	m.flags[name] = f
	return nil
}

func (m *MemoryProvider) ListFlags(_ context.Context) ([]Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Flag, 0, len(m.flags))
	for _, f := range m.flags {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b Flag) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (m *MemoryProvider) Close() error { return nil }
