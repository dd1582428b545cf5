// Package digest consolidates deferred messages into periodic digests.
//
// The dispatcher moves deferred messages into buckets keyed by digest
// configuration, channel and recipient (BucketStore.Postpone). The Scheduler
// keeps one cron timer per digest subscription. When a timer fires the bucket
// is drained atomically; an empty bucket is a quiet tick, otherwise the
// configuration's template is rendered with ${count} replaced by the number
// of drained entries and sent once on the subscription's preferred channel,
// with the configuration tag as subject.
//
// Cron expressions have six fields, seconds first, or are descriptors such as
// "@hourly" and "@every 15m".
//
// Usage:
//
//	s, err := digest.NewScheduler(store, store, registry,
//		digest.WithSubscriptionLister(store),
//		digest.WithLocker(redisLocker),
//		digest.WithLogger(log),
//	)
//	if err != nil {
//		return err
//	}
//	g.Go(s.Run(ctx))
package digest
