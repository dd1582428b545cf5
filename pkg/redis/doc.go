// Package redis connects to Redis with go-redis and provides the
// cross-process flush lock used by the digest scheduler.
//
// Redis is optional: Config.Enabled reports whether REDIS_URL is set. When it
// is, notifyd uses the client for three things:
//
//   - a Locker so only one process flushes a digest bucket at a time;
//   - feature.RedisProvider, so the consolidation toggle is shared;
//   - a readiness probe from Healthcheck.
//
// Usage:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	scheduler, err := digest.NewScheduler(store, store, registry,
//		digest.WithLocker(redis.NewLocker(client, cfg.LockPrefix)),
//	)
package redis
