package feature

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// ConsolidationFlag is the flag gating digest consolidation.
const ConsolidationFlag = "digest_consolidation"

// ConsolidationToggle answers whether deferred digests are enabled.
// Unknown flags and provider errors fall back to the default.
type ConsolidationToggle struct {
	provider Provider
	flag     string
	fallback bool
	logger   *slog.Logger
}

// ToggleOption configures a ConsolidationToggle.
type ToggleOption func(*ConsolidationToggle)

// WithFlagName overrides ConsolidationFlag.
func WithFlagName(name string) ToggleOption {
	return func(t *ConsolidationToggle) {
		if name != "" {
			t.flag = name
		}
	}
}

// WithDefault sets the value used when the flag is missing or unreadable.
func WithDefault(enabled bool) ToggleOption {
	return func(t *ConsolidationToggle) { t.fallback = enabled }
}

// WithToggleLogger sets the logger used to report provider failures.
func WithToggleLogger(l *slog.Logger) ToggleOption {
	return func(t *ConsolidationToggle) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewConsolidationToggle wraps provider. Consolidation defaults to enabled.
func NewConsolidationToggle(provider Provider, opts ...ToggleOption) *ConsolidationToggle {
	t := &ConsolidationToggle{
		provider: provider,
		flag:     ConsolidationFlag,
		fallback: true,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *ConsolidationToggle) IsConsolidationEnabled(ctx context.Context) bool {
	if t.provider == nil {
		return t.fallback
	}
	enabled, err := t.provider.IsEnabled(ctx, t.flag)
	switch {
	case err == nil:
		return enabled
	case errors.Is(err, ErrFlagNotFound):
		return t.fallback
	default:
		t.logger.WarnContext(ctx, "feature flag lookup failed, using default",
			slog.String("flag", t.flag),
			slog.Bool("default", t.fallback),
			logger.Error(err))
		return t.fallback
	}
}

// Static is a toggle with a fixed answer.
type Static bool

func (s Static) IsConsolidationEnabled(context.Context) bool { return bool(s) }
