// Package dispatcher turns submitted notifications into delivered, deferred
// or suppressed messages.
//
// Submit persists a notification and one work item per channel message, then
// wakes the queue worker. For each claimed item the pipeline loads the
// notification, the recipient profile and the recipient's digest
// subscriptions, asks the preference evaluator for a decision and disposes of
// the item:
//
//   - ALLOW: the message is queued on the channel's bounded pool. The pool
//     sends it once, marks it sent and retires the item. A full pool releases
//     the item for a later attempt. While queued the item is in flight: a
//     re-claim after its lease expires is skipped rather than sent again.
//   - DEFER: the message is moved into its digest bucket and the item is
//     retired in the same store operation.
//   - DENY: the item is retired without sending.
//
// Every item walks RETRIEVED, EVALUATED, one decision, then RETIRED. Observers
// registered with WithObserver see each step.
//
// Usage:
//
//	d, err := dispatcher.New(store, registry, toggle,
//		dispatcher.WithLogger(log),
//		dispatcher.WithMetrics(m),
//	)
//	if err != nil {
//		return err
//	}
//	g.Go(d.Run(ctx))
//
//	err = d.Submit(ctx, &notification.Notification{
//		RecipientID: userID,
//		Messages: []notification.Message{
//			{Channel: notification.ChannelEmail, Subject: "Hi", Body: "...", Tag: "comments"},
//		},
//	})
package dispatcher
