package dispatcher

import "time"

// Config holds the dispatcher tuning knobs.
type Config struct {
	ChannelWorkers   int           `env:"DISPATCH_CHANNEL_WORKERS" envDefault:"4"`
	ChannelQueueSize int           `env:"DISPATCH_CHANNEL_QUEUE_SIZE" envDefault:"64"`
	SendTimeout      time.Duration `env:"DISPATCH_SEND_TIMEOUT" envDefault:"30s"`
	RetryDelay       time.Duration `env:"DISPATCH_RETRY_DELAY" envDefault:"10s"`
}

// DefaultConfig mirrors the env defaults.
func DefaultConfig() Config {
	return Config{
		ChannelWorkers:   4,
		ChannelQueueSize: 64,
		SendTimeout:      30 * time.Second,
		RetryDelay:       10 * time.Second,
	}
}

// sendBudget is the longest a queued send can take from submission to
// completion: a full pool backlog ahead of it plus its own attempt.
func (c Config) sendBudget() time.Duration {
	workers := max(c.ChannelWorkers, 1)
	rounds := (max(c.ChannelQueueSize, 0)+workers-1)/workers + 1
	return time.Duration(rounds) * c.SendTimeout
}
