package feature

import (
	"context"
	"time"
)

// Flag is a named on/off switch.
type Flag struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Provider stores and evaluates feature flags.
type Provider interface {
	// IsEnabled returns ErrFlagNotFound for unknown flags.
	IsEnabled(ctx context.Context, name string) (bool, error)

	// SetEnabled creates or updates the flag.
	SetEnabled(ctx context.Context, name string, enabled bool) error

	// ListFlags returns every known flag ordered by name.
	ListFlags(ctx context.Context) ([]Flag, error)

	// Close releases any resources used by the provider.
	Close() error
}
