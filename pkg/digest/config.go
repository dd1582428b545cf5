package digest

import "time"

// Config holds the scheduler tuning knobs.
type Config struct {
	// RefreshInterval is how often subscriptions are reconciled with the store.
	// Zero disables periodic reconciliation.
	RefreshInterval time.Duration `env:"DIGEST_REFRESH_INTERVAL" envDefault:"1m"`
	FlushTimeout    time.Duration `env:"DIGEST_FLUSH_TIMEOUT" envDefault:"30s"`
	LockTTL         time.Duration `env:"DIGEST_LOCK_TTL" envDefault:"1m"`
}

// DefaultConfig mirrors the env defaults.
func DefaultConfig() Config {
	return Config{
		RefreshInterval: time.Minute,
		FlushTimeout:    30 * time.Second,
		LockTTL:         time.Minute,
	}
}
