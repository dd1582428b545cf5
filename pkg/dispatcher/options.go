package dispatcher

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// Option configures a Dispatcher.
type Option func(*options)

type options struct {
	cfg        Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	observer   Observer
	workerOpts []queue.WorkerOption
	now        func() time.Time
}

// WithConfig applies the positive fields of cfg; zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		if cfg.ChannelWorkers > 0 {
			o.cfg.ChannelWorkers = cfg.ChannelWorkers
		}
		if cfg.ChannelQueueSize > 0 {
			o.cfg.ChannelQueueSize = cfg.ChannelQueueSize
		}
		if cfg.SendTimeout > 0 {
			o.cfg.SendTimeout = cfg.SendTimeout
		}
		if cfg.RetryDelay > 0 {
			o.cfg.RetryDelay = cfg.RetryDelay
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithObserver registers a callback for every lifecycle transition.
func WithObserver(fn Observer) Option {
	return func(o *options) { o.observer = fn }
}

// WithWorkerOptions forwards options to the queue poll loop.
func WithWorkerOptions(opts ...queue.WorkerOption) Option {
	return func(o *options) { o.workerOpts = append(o.workerOpts, opts...) }
}

// WithClock overrides the time source used to stamp submitted notifications.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
