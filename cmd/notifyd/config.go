package main

import (
	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/redis"
)

// appConfig holds the service-level settings.
type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"notifyd"`
	LogLevel    string `env:"LOG_LEVEL"`
	// CatalogPath points at a YAML file of digest configurations to seed.
	CatalogPath string `env:"DIGEST_CATALOG"`
	// Consolidation is the toggle value used when no flag is stored.
	Consolidation bool `env:"DIGEST_CONSOLIDATION" envDefault:"true"`
}

// settings groups every configuration section notifyd reads.
type settings struct {
	App        appConfig
	Postgres   pg.Config
	Redis      redis.Config
	Queue      queue.Config
	Dispatcher dispatcher.Config
	Digest     digest.Config
	Email      channel.EmailConfig
	SMS        channel.SMSConfig
	HTTP       httpserver.Config
}

func loadSettings() (settings, error) {
	var s settings
	loaders := []func() error{
		func() error { return config.Load(&s.App) },
		func() error { return config.Load(&s.Postgres) },
		func() error { return config.Load(&s.Redis) },
		func() error { return config.Load(&s.Queue) },
		func() error { return config.Load(&s.Dispatcher) },
		func() error { return config.Load(&s.Digest) },
		func() error { return config.Load(&s.Email) },
		func() error { return config.Load(&s.SMS) },
		func() error { return config.Load(&s.HTTP) },
	}
	for _, load := range loaders {
		if err := load(); err != nil {
			return settings{}, err
		}
	}
	return s, nil
}
