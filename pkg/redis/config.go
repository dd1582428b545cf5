package redis

import "time"

// Config is populated from the environment. An empty ConnectionURL disables
// Redis; callers check Enabled before connecting.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
	// LockPrefix namespaces digest flush locks.
	LockPrefix string `env:"REDIS_LOCK_PREFIX" envDefault:"notifykit:lock:"`
	// FeatureKey is the hash holding feature flag states.
	FeatureKey string `env:"REDIS_FEATURE_KEY" envDefault:"notifykit:features"`
}

// Enabled reports whether a Redis URL is configured.
func (c Config) Enabled() bool {
	return c.ConnectionURL != ""
}
