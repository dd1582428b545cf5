package digest

import (
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/metrics"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConfig applies the non-zero fields of cfg.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) {
		if cfg.RefreshInterval >= 0 {
			s.cfg.RefreshInterval = cfg.RefreshInterval
		}
		if cfg.FlushTimeout > 0 {
			s.cfg.FlushTimeout = cfg.FlushTimeout
		}
		if cfg.LockTTL > 0 {
			s.cfg.LockTTL = cfg.LockTTL
		}
	}
}

// WithLocker adds a cross-process lock around every flush.
func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithSubscriptionLister enables periodic reconciliation with the store.
func WithSubscriptionLister(l SubscriptionLister) Option {
	return func(s *Scheduler) { s.lister = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}
