// Command notifyd runs the notification dispatcher, the digest scheduler and
// the HTTP endpoint (notification intake and operations) in one process.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/pkg/api"
	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/feature"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/redis"
	"github.com/dmitrymomot/notifykit/pkg/store/memory"
	"github.com/dmitrymomot/notifykit/pkg/store/postgres"
)

// store is everything notifyd needs from the persistence layer.
type store interface {
	dispatcher.Store
	digest.SubscriptionLister
	configurationStore
}

func main() {
	if err := run(); err != nil {
		slog.Error("notifyd exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	logOpts := []logger.Option{logger.WithEnvironment(cfg.App.Env, cfg.App.ServiceName)}
	if cfg.App.LogLevel != "" {
		logOpts = append(logOpts, logger.WithLevel(logger.ParseLevel(cfg.App.LogLevel)))
	}
	log := logger.New(logOpts...)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		return err
	}

	var checks []httpserver.Check

	st, pool, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
		checks = append(checks, httpserver.Check{Name: "postgres", Probe: pg.Healthcheck(pool)})
	}

	if cfg.App.CatalogPath != "" {
		n, err := seedCatalog(ctx, st, cfg.App.CatalogPath, log)
		if err != nil {
			return err
		}
		log.InfoContext(ctx, "digest catalog loaded", logger.Count(n))
	}

	var (
		redisClient *goredis.Client
		provider    feature.Provider
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		checks = append(checks, httpserver.Check{Name: "redis", Probe: redis.Healthcheck(redisClient)})
		provider = feature.NewRedisProvider(redisClient, cfg.Redis.FeatureKey)
	} else {
		provider, err = feature.NewMemoryProvider(feature.Flag{
			Name:        feature.ConsolidationFlag,
			Description: "Defer subscribed messages into digests",
			Enabled:     cfg.App.Consolidation,
		})
		if err != nil {
			return err
		}
	}
	defer provider.Close()

	toggle := feature.NewConsolidationToggle(provider,
		feature.WithDefault(cfg.App.Consolidation),
		feature.WithToggleLogger(log))

	senders, err := buildSenders(cfg, log)
	if err != nil {
		return err
	}

	d, err := dispatcher.New(st, senders, toggle,
		dispatcher.WithConfig(cfg.Dispatcher),
		dispatcher.WithLogger(log),
		dispatcher.WithMetrics(m),
		dispatcher.WithWorkerOptions(cfg.Queue.Options()...),
	)
	if err != nil {
		return err
	}

	schedOpts := []digest.Option{
		digest.WithConfig(cfg.Digest),
		digest.WithSubscriptionLister(st),
		digest.WithLogger(log),
		digest.WithMetrics(m),
	}
	if redisClient != nil {
		schedOpts = append(schedOpts, digest.WithLocker(redis.NewLocker(redisClient, cfg.Redis.LockPrefix)))
	}
	scheduler, err := digest.NewScheduler(st, st, senders, schedOpts...)
	if err != nil {
		return err
	}

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
	router := httpserver.OpsRouter(log, registry, checks...)
	api.Mount(router, d, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(d.Run(ctx))
	g.Go(scheduler.Run(ctx))
	g.Go(func() error { return srv.Run(ctx, router) })

	log.InfoContext(ctx, "notifyd started",
		slog.Any("channels", senders.Channels()),
		slog.Bool("postgres", cfg.Postgres.ConnectionString != ""),
		slog.Bool("redis", redisClient != nil))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("notifyd stopped")
	return nil
}

// openStore connects to Postgres when configured and falls back to the
// in-memory store otherwise.
func openStore(ctx context.Context, cfg settings, log *slog.Logger) (store, *pgxpool.Pool, error) {
	if cfg.Postgres.ConnectionString == "" {
		log.WarnContext(ctx, "PG_CONN_URL not set, using in-memory store; state is lost on restart")
		return memory.New(), nil, nil
	}

	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Postgres.MigrateOnStart {
		if err := pg.Migrate(ctx, pool, cfg.Postgres, postgres.Migrations(), log); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return postgres.New(pool, postgres.WithLogger(log)), pool, nil
}

// buildSenders registers Postmark and the SMS gateway when configured and
// file senders otherwise.
func buildSenders(cfg settings, log *slog.Logger) (*channel.Registry, error) {
	registry := channel.NewRegistry()

	if cfg.Email.Enabled() {
		email, err := channel.NewEmailSender(cfg.Email)
		if err != nil {
			return nil, err
		}
		registry.Register(email)
	} else {
		log.Warn("postmark is not configured, writing emails to disk", slog.String("dir", cfg.Email.DevDir))
		registry.Register(channel.NewFileSender(notification.ChannelEmail, cfg.Email.DevDir))
	}

	if cfg.SMS.Enabled() {
		sms, err := channel.NewSMSSender(cfg.SMS)
		if err != nil {
			return nil, err
		}
		registry.Register(sms)
	} else {
		log.Warn("sms gateway is not configured, writing sms to disk", slog.String("dir", cfg.SMS.DevDir))
		registry.Register(channel.NewFileSender(notification.ChannelSMS, cfg.SMS.DevDir))
	}

	return registry, nil
}
