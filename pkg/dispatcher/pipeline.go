package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/preference"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// Suppression reasons raised by the pipeline itself.
const (
	ReasonNotificationNotFound = "notification_not_found"
	ReasonMessageNotFound      = "message_not_found"
	ReasonAlreadySent          = "already_sent"
	ReasonLookupFailed         = "lookup_failed"
	ReasonNoSender             = "no_sender"
)

// Release reasons.
const (
	releasePoolFull    = "pool_full"
	releaseBucketWrite = "bucket_write_failed"
)

// ConsolidationToggle globally gates digest deferral.
type ConsolidationToggle interface {
	IsConsolidationEnabled(ctx context.Context) bool
}

// Store is everything the pipeline reads and writes.
type Store interface {
	notification.ProfileStore
	notification.SubscriptionStore
	notification.NotificationStore
	queue.Repository
	digest.BucketStore
}

// Pipeline disposes of one claimed work item per Handle call. It implements
// queue.Handler.
type Pipeline struct {
	store   Store
	senders *channel.Registry
	toggle  ConsolidationToggle
	pools   map[notification.Channel]*channelPool
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	observe Observer

	// inFlight holds keys handed to a channel pool and not yet retired. A
	// lease can expire while the send waits for a sender slot; the re-claim
	// must not queue a second send.
	mu       sync.Mutex
	inFlight map[queue.Key]struct{}
}

func newPipeline(store Store, senders *channel.Registry, toggle ConsolidationToggle, o *options) *Pipeline {
	p := &Pipeline{
		store:   store,
		senders: senders,
		toggle:  toggle,
		pools:   make(map[notification.Channel]*channelPool),
		cfg:     o.cfg,
		logger:  o.logger.With(logger.Component("dispatcher.pipeline")),
		metrics: o.metrics,
		observe: o.observer,

		inFlight: make(map[queue.Key]struct{}),
	}
	for _, ch := range senders.Channels() {
		p.pools[ch] = newChannelPool(o.cfg.ChannelWorkers, o.cfg.ChannelQueueSize)
	}
	return p
}

// close waits for queued sends to finish.
func (p *Pipeline) close() {
	for _, pool := range p.pools {
		pool.close()
	}
}

// Handle runs one work item through lookup, evaluation and disposal.
// Failures are fatal to the item only: it is suppressed or released, never
// left for endless reprocessing.
func (p *Pipeline) Handle(ctx context.Context, item *queue.WorkItem) error {
	log := p.logger.With(
		logger.NotificationID(item.NotificationID),
		logger.Channel(item.Channel),
	)
	if p.sending(item.Key) {
		// The re-claim renewed the lease; the pending send retires the item.
		log.DebugContext(ctx, "work item already queued for sending, skipped")
		return nil
	}
	lc := NewLifecycle(item.Key, p.observe)

	n, err := p.store.GetNotification(ctx, item.NotificationID)
	if err != nil {
		reason := ReasonLookupFailed
		if errors.Is(err, notification.ErrNotFound) {
			reason = ReasonNotificationNotFound
		}
		log.WarnContext(ctx, "notification lookup failed", logger.Error(err))
		return p.suppress(ctx, lc, item, reason)
	}
	log = log.With(logger.RecipientID(n.RecipientID))

	msg, ok := n.Message(item.Channel)
	if !ok {
		return p.suppress(ctx, lc, item, ReasonMessageNotFound)
	}
	if msg.Sent {
		return p.suppress(ctx, lc, item, ReasonAlreadySent)
	}

	profile, err := p.store.GetProfile(ctx, n.RecipientID)
	switch {
	case errors.Is(err, notification.ErrNotFound):
		log.WarnContext(ctx, "recipient profile not found", logger.Error(err))
		profile = nil
	case err != nil:
		log.ErrorContext(ctx, "recipient profile lookup failed", logger.Error(err))
		return p.suppress(ctx, lc, item, ReasonLookupFailed)
	}

	var subs []notification.DigestSubscription
	if profile != nil {
		subs, err = p.store.FindSubscriptionsByRecipient(ctx, n.RecipientID)
		if err != nil {
			log.ErrorContext(ctx, "subscription lookup failed", logger.Error(err))
			return p.suppress(ctx, lc, item, ReasonLookupFailed)
		}
	}

	decision := preference.Evaluate(preference.Input{
		Channel:       item.Channel,
		Important:     n.Important,
		Tag:           msg.Tag,
		Profile:       profile,
		Subscriptions: subs,
		Consolidation: p.toggle.IsConsolidationEnabled(ctx),
	})
	if err := lc.Fire(ctx, StageEvaluated); err != nil {
		return err
	}
	log.DebugContext(ctx, "work item evaluated",
		logger.Decision(decision.Outcome),
		logger.Reason(decision.Reason),
		logger.Tag(msg.Tag))

	switch decision.Outcome {
	case preference.Allow:
		return p.send(ctx, lc, item, msg, decision)
	case preference.Defer:
		return p.postpone(ctx, lc, item, msg, decision)
	default:
		return p.suppress(ctx, lc, item, decision.Reason)
	}
}

// send hands the message to the channel pool. The pool sends, marks the
// message sent and retires the item. A full pool releases the item.
func (p *Pipeline) send(ctx context.Context, lc *Lifecycle, item *queue.WorkItem, msg notification.Message, d preference.Decision) error {
	pool, ok := p.pools[item.Channel]
	if !ok {
		return p.suppress(ctx, lc, item, ReasonNoSender)
	}

	// The send outlives Handle; keep context values but not its deadline.
	jobCtx := context.WithoutCancel(ctx)
	p.track(item.Key)
	err := pool.trySubmit(func() {
		defer p.untrack(item.Key)
		p.deliver(jobCtx, lc, item, msg, d)
	})
	if err != nil {
		p.untrack(item.Key)
		p.logger.WarnContext(ctx, "channel pool unavailable, releasing work item",
			logger.Channel(item.Channel),
			logger.Error(err))
		return p.release(ctx, lc, item, releasePoolFull)
	}
	return nil
}

func (p *Pipeline) deliver(ctx context.Context, lc *Lifecycle, item *queue.WorkItem, msg notification.Message, d preference.Decision) {
	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	err := p.senders.Send(sendCtx, item.Channel, d.Address, msg.Subject, msg.Body)
	took := time.Since(start)
	p.metrics.Delivery(string(item.Channel), took, err)

	log := p.logger.With(
		logger.NotificationID(item.NotificationID),
		logger.Channel(item.Channel),
		logger.RecipientID(item.RecipientID),
		logger.Duration(took),
	)

	if err != nil {
		// At most one attempt: the item is retired even though delivery failed.
		log.ErrorContext(ctx, "delivery failed, work item retired without retry",
			slog.Bool("permanent", channel.IsPermanent(err)),
			logger.Error(err))
	} else if merr := p.store.MarkSent(ctx, item.NotificationID, item.Channel); merr != nil {
		log.ErrorContext(ctx, "failed to mark message sent", logger.Error(merr))
	}

	p.metrics.Decision(string(item.Channel), string(preference.Allow), d.Reason)
	if err := lc.Fire(ctx, StageSent); err != nil {
		log.ErrorContext(ctx, "lifecycle violation", logger.Error(err))
		return
	}
	if rerr := p.retire(ctx, lc, item); rerr != nil {
		log.ErrorContext(ctx, "failed to retire sent work item", logger.Error(rerr))
		return
	}
	if err == nil {
		log.InfoContext(ctx, "message sent", logger.Decision(preference.Allow), logger.Reason(d.Reason))
	}
}

func (p *Pipeline) track(key queue.Key) {
	p.mu.Lock()
	p.inFlight[key] = struct{}{}
	p.mu.Unlock()
}

func (p *Pipeline) untrack(key queue.Key) {
	p.mu.Lock()
	delete(p.inFlight, key)
	p.mu.Unlock()
}

func (p *Pipeline) sending(key queue.Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inFlight[key]
	return ok
}

// postpone moves the message into its digest bucket; the store retires the
// work item in the same transaction.
func (p *Pipeline) postpone(ctx context.Context, lc *Lifecycle, item *queue.WorkItem, msg notification.Message, d preference.Decision) error {
	entry := digest.NewEntry(*d.Subscription, item.NotificationID, msg)

	if err := p.store.Postpone(ctx, item.Key, entry); err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			// Another claimant already disposed of the item.
			p.logger.WarnContext(ctx, "work item vanished before postpone",
				logger.NotificationID(item.NotificationID),
				logger.Channel(item.Channel))
			return nil
		}
		p.logger.ErrorContext(ctx, "failed to postpone message",
			logger.NotificationID(item.NotificationID),
			logger.Channel(item.Channel),
			logger.Error(err))
		return p.release(ctx, lc, item, releaseBucketWrite)
	}

	p.metrics.Decision(string(item.Channel), string(preference.Defer), d.Reason)
	if err := lc.Fire(ctx, StageDeferred); err != nil {
		return err
	}
	if err := lc.Fire(ctx, StageRetired); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "message deferred to digest",
		logger.NotificationID(item.NotificationID),
		logger.Channel(item.Channel),
		logger.SubscriptionID(d.Subscription.ID),
		logger.Tag(d.Subscription.Configuration.Tag))
	return nil
}

func (p *Pipeline) suppress(ctx context.Context, lc *Lifecycle, item *queue.WorkItem, reason string) error {
	p.metrics.Decision(string(item.Channel), string(preference.Deny), reason)
	if err := lc.Fire(ctx, StageSuppressed); err != nil {
		return err
	}
	if err := p.retire(ctx, lc, item); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "message suppressed",
		logger.NotificationID(item.NotificationID),
		logger.Channel(item.Channel),
		logger.Decision(preference.Deny),
		logger.Reason(reason))
	return nil
}

func (p *Pipeline) retire(ctx context.Context, lc *Lifecycle, item *queue.WorkItem) error {
	if err := p.store.Retire(ctx, item.Key); err != nil {
		return err
	}
	return lc.Fire(ctx, StageRetired)
}

func (p *Pipeline) release(ctx context.Context, lc *Lifecycle, item *queue.WorkItem, reason string) error {
	p.metrics.Released(string(item.Channel), reason)
	if err := lc.Fire(ctx, StageReleased); err != nil {
		return err
	}
	return p.store.Release(ctx, item.Key, p.cfg.RetryDelay)
}
