package queue

import "time"

// Config holds the configuration for the work queue poll loop.
type Config struct {
	PollInterval time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"5s"`
	LockTimeout  time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
}

// Options converts the configuration into worker options.
func (c Config) Options() []WorkerOption {
	return []WorkerOption{
		WithPollInterval(c.PollInterval),
		WithLockTimeout(c.LockTimeout),
	}
}
