// Package queue implements the durable work queue that feeds the dispatch
// pipeline.
//
// A work item exists for every (notification, channel) pair whose message has
// not been disposed of yet. Items are created in the same transaction as the
// notification (see notification.NotificationStore) and deleted exactly once
// through Repository.Retire.
//
// # Claims
//
// ClaimOldest hands out items in creation order, ties broken by insertion
// sequence, and leases the claimed row to one worker. A lease that expires
// without a retire or release makes the item claimable again, which is how
// items survive a crash mid-processing. Retire is idempotent so recovery
// paths may call it speculatively.
//
// # Worker
//
// Worker is the single poll loop. It sleeps between poll ticks, wakes early
// when Notify is called, and on each wake claims items until the queue is
// empty:
//
//	w, err := queue.NewWorker(store, pipeline,
//		queue.WithPollInterval(time.Second),
//		queue.WithLockTimeout(time.Minute),
//	)
//	if err != nil {
//		return err
//	}
//	g.Go(w.Run(ctx))
//
// Handler errors and panics are logged and never stop the loop.
package queue
