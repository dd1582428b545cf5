package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// MessageSender delivers one message on a channel. *channel.Registry
// satisfies it.
type MessageSender interface {
	Send(ctx context.Context, ch notification.Channel, address, subject, body string) error
}

// SubscriptionLister returns every active digest subscription.
type SubscriptionLister interface {
	ListSubscriptions(ctx context.Context) ([]notification.DigestSubscription, error)
}

// Scheduler runs one cron timer per digest subscription. On every tick the
// subscription's bucket is drained and, when it held anything, a single
// consolidated message is sent.
type Scheduler struct {
	buckets  BucketStore
	profiles notification.ProfileStore
	sender   MessageSender
	lister   SubscriptionLister
	locker   Locker
	keys     keyedMutex

	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	timers map[uuid.UUID]*subscriptionTimer
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type subscriptionTimer struct {
	sub      notification.DigestSubscription
	schedule cron.Schedule
	cancel   context.CancelFunc
}

// NewScheduler creates an idle scheduler.
func NewScheduler(buckets BucketStore, profiles notification.ProfileStore, sender MessageSender, opts ...Option) (*Scheduler, error) {
	if buckets == nil {
		return nil, fmt.Errorf("%w: bucket store", ErrMissingDependency)
	}
	if profiles == nil {
		return nil, fmt.Errorf("%w: profile store", ErrMissingDependency)
	}
	if sender == nil {
		return nil, fmt.Errorf("%w: sender", ErrMissingDependency)
	}

	s := &Scheduler{
		buckets:  buckets,
		profiles: profiles,
		sender:   sender,
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
		timers:   make(map[uuid.UUID]*subscriptionTimer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("digest.scheduler"))
	return s, nil
}

// Add schedules sub, replacing an existing timer with the same id when the
// subscription changed. Subscriptions added before Start begin ticking once
// the scheduler starts.
func (s *Scheduler) Add(sub notification.DigestSubscription) error {
	schedule, err := sub.Schedule()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[sub.ID]; ok {
		if t.sub == sub {
			return nil
		}
		if t.cancel != nil {
			t.cancel()
		}
	}

	t := &subscriptionTimer{sub: sub, schedule: schedule}
	s.timers[sub.ID] = t
	if s.ctx != nil {
		s.launch(t)
	}
	s.metrics.Schedules(len(s.timers))
	return nil
}

// Remove cancels the timer of subscription id. Undrained entries stay in the
// bucket.
func (s *Scheduler) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[id]
	if !ok {
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
	delete(s.timers, id)
	s.metrics.Schedules(len(s.timers))
}

// Len returns the number of scheduled subscriptions.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Sync reconciles the timers with the subscriptions returned by the lister.
func (s *Scheduler) Sync(ctx context.Context) error {
	if s.lister == nil {
		return fmt.Errorf("%w: subscription lister", ErrMissingDependency)
	}

	subs, err := s.lister.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	active := make(map[uuid.UUID]struct{}, len(subs))
	var errs []error
	for _, sub := range subs {
		active[sub.ID] = struct{}{}
		if err := s.Add(sub); err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
		}
	}

	s.mu.Lock()
	var stale []uuid.UUID
	for id := range s.timers {
		if _, ok := active[id]; !ok {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()
	for _, id := range stale {
		s.Remove(id)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Start launches every registered timer and, with a lister, the
// reconciliation loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.lister != nil {
		if err := s.Sync(ctx); err != nil {
			s.logger.ErrorContext(ctx, "initial subscription sync failed", logger.Error(err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return ErrSchedulerStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, t := range s.timers {
		s.launch(t)
	}

	if s.lister != nil && s.cfg.RefreshInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.refresh(s.ctx)
		}()
	}

	s.logger.InfoContext(ctx, "digest scheduler started", logger.Count(len(s.timers)))
	return nil
}

// Stop cancels every timer and waits for running flushes to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.ctx, s.cancel = nil, nil
	for _, t := range s.timers {
		t.cancel = nil
	}
	s.mu.Unlock()

	if cancel == nil {
		return ErrSchedulerNotStarted
	}

	cancel()
	s.wg.Wait()

	s.logger.Info("digest scheduler stopped")
	return nil
}

// Run starts the scheduler and returns a function suitable for errgroup.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return s.Stop()
	}
}

// launch must be called with s.mu held.
func (s *Scheduler) launch(t *subscriptionTimer) {
	ctx, cancel := context.WithCancel(s.ctx)
	t.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tick(ctx, t.sub, t.schedule)
	}()
}

func (s *Scheduler) tick(ctx context.Context, sub notification.DigestSubscription, schedule cron.Schedule) {
	for {
		next := schedule.Next(time.Now())
		if next.IsZero() {
			s.logger.WarnContext(ctx, "digest schedule never fires",
				logger.SubscriptionID(sub.ID),
				slog.String("cron", sub.CronExpression))
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// A flush in progress finishes on shutdown; FlushTimeout bounds it.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FlushTimeout)
		if _, err := s.Flush(fctx, sub); err != nil {
			s.logger.ErrorContext(fctx, "digest flush failed",
				logger.SubscriptionID(sub.ID),
				logger.RecipientID(sub.RecipientID),
				logger.Channel(sub.PreferredChannel),
				logger.Tag(sub.Configuration.Tag),
				logger.Error(err))
		}
		cancel()
	}
}

func (s *Scheduler) refresh(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := s.Sync(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "subscription sync failed", logger.Error(err))
		}
	}
}

// Flush drains the subscription's bucket and sends one consolidated message
// when it held anything. It returns the number of drained entries.
//
// The drain commits before the send: a send failure loses the digest and is
// reported as an error.
func (s *Scheduler) Flush(ctx context.Context, sub notification.DigestSubscription) (int, error) {
	key := KeyFor(sub)
	unlock := s.keys.lock(key)
	defer unlock()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, "digest:"+key.String(), s.cfg.LockTTL)
		if errors.Is(err, ErrLockHeld) {
			s.logger.DebugContext(ctx, "digest flush skipped, bucket locked elsewhere",
				logger.SubscriptionID(sub.ID))
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("acquire flush lock %s: %w", key, err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WarnContext(ctx, "failed to release flush lock",
					logger.SubscriptionID(sub.ID),
					logger.Error(err))
			}
		}()
	}

	entries, err := s.buckets.Drain(ctx, key)
	if err != nil {
		s.metrics.Digest(string(sub.PreferredChannel), 0, err)
		return 0, fmt.Errorf("drain bucket %s: %w", key, err)
	}
	count := len(entries)
	if count == 0 {
		s.metrics.Digest(string(sub.PreferredChannel), 0, nil)
		return 0, nil
	}

	err = s.send(ctx, sub, count)
	s.metrics.Digest(string(sub.PreferredChannel), count, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "digest lost after drain",
			logger.SubscriptionID(sub.ID),
			logger.RecipientID(sub.RecipientID),
			logger.Channel(sub.PreferredChannel),
			logger.Count(count),
			logger.Error(err))
		return count, err
	}

	s.logger.InfoContext(ctx, "digest sent",
		logger.SubscriptionID(sub.ID),
		logger.RecipientID(sub.RecipientID),
		logger.Channel(sub.PreferredChannel),
		logger.Tag(sub.Configuration.Tag),
		logger.Count(count))
	return count, nil
}

func (s *Scheduler) send(ctx context.Context, sub notification.DigestSubscription, count int) error {
	profile, err := s.profiles.GetProfile(ctx, sub.RecipientID)
	if err != nil {
		return fmt.Errorf("recipient profile %s: %w", sub.RecipientID, err)
	}
	address, ok := profile.Address(sub.PreferredChannel)
	if !ok {
		return fmt.Errorf("%w: %s for recipient %s", ErrNoAddress, sub.PreferredChannel, sub.RecipientID)
	}
	return s.sender.Send(ctx, sub.PreferredChannel, address, sub.Configuration.Tag, sub.Configuration.Compose(count))
}
