package digest_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/store/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockSender is a mock implementation of digest.MessageSender
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, ch notification.Channel, address, subject, body string) error {
	return m.Called(ctx, ch, address, subject, body).Error(0)
}

// heldLocker reports every key as locked elsewhere.
type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return nil, digest.ErrLockHeld
}

// countingLocker grants every lock and counts releases.
type countingLocker struct {
	mu       sync.Mutex
	acquired []string
	released int
}

func (l *countingLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired = append(l.acquired, key)
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released++
		return nil
	}, nil
}

type fixture struct {
	store *memory.Store
	sub   notification.DigestSubscription
}

func newFixture(t *testing.T, ch notification.Channel, expr string) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	recipient := uuid.New()
	profile := notification.NewRecipientProfile(recipient, "reader@example.com", "+15550123", true)
	require.NoError(t, store.SaveProfile(ctx, *profile))

	cfg, err := notification.NewDigestConfiguration("comments", "You have ${count} new comments")
	require.NoError(t, err)
	require.NoError(t, store.CreateConfiguration(ctx, *cfg))

	sub, err := notification.NewDigestSubscription(recipient, *cfg, ch, expr)
	require.NoError(t, err)
	require.NoError(t, store.ReplaceSubscriptions(ctx, recipient, []notification.DigestSubscription{*sub}))

	return &fixture{store: store, sub: *sub}
}

// postpone moves n fresh messages into the subscription's bucket.
func (f *fixture) postpone(t *testing.T, n int) {
	t.Helper()
	ctx := context.Background()

	for range n {
		msg := notification.Message{Channel: f.sub.PreferredChannel, Subject: "new comment", Body: "...", Tag: "comments"}
		notif := &notification.Notification{
			ID:          uuid.New(),
			RecipientID: f.sub.RecipientID,
			CreatedAt:   time.Now().UTC(),
			Messages:    []notification.Message{msg},
		}
		require.NoError(t, f.store.CreateNotification(ctx, notif))
		key := queue.Key{NotificationID: notif.ID, Channel: msg.Channel}
		require.NoError(t, f.store.Postpone(ctx, key, digest.NewEntry(f.sub, notif.ID, msg)))
	}
}

func (f *fixture) pending(t *testing.T) int {
	t.Helper()
	n, err := f.store.Count(context.Background(), digest.KeyFor(f.sub))
	require.NoError(t, err)
	return n
}

func TestNewScheduler_MissingDependencies(t *testing.T) {
	t.Parallel()

	store := memory.New()
	sender := &MockSender{}

	_, err := digest.NewScheduler(nil, store, sender)
	assert.ErrorIs(t, err, digest.ErrMissingDependency)
	_, err = digest.NewScheduler(store, nil, sender)
	assert.ErrorIs(t, err, digest.ErrMissingDependency)
	_, err = digest.NewScheduler(store, store, nil)
	assert.ErrorIs(t, err, digest.ErrMissingDependency)
}

func TestScheduler_Flush(t *testing.T) {
	t.Parallel()

	t.Run("empty bucket sends nothing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, notification.ChannelEmail, "0 0 9 * * *")
		sender := &MockSender{}

		s, err := digest.NewScheduler(f.store, f.store, sender, digest.WithLogger(discardLogger()))
		require.NoError(t, err)

		count, err := s.Flush(context.Background(), f.sub)
		require.NoError(t, err)
		assert.Zero(t, count)
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("consolidates every entry into one message", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, notification.ChannelEmail, "0/15 * * * * *")
		f.postpone(t, 3)

		sender := &MockSender{}
		sender.On("Send", mock.Anything, notification.ChannelEmail, "reader@example.com",
			"comments", "You have 3 new comments").Return(nil).Once()

		s, err := digest.NewScheduler(f.store, f.store, sender, digest.WithLogger(discardLogger()))
		require.NoError(t, err)

		count, err := s.Flush(context.Background(), f.sub)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
		assert.Zero(t, f.pending(t))
		sender.AssertExpectations(t)

		// Nothing left for the next tick.
		count, err = s.Flush(context.Background(), f.sub)
		require.NoError(t, err)
		assert.Zero(t, count)
		sender.AssertNumberOfCalls(t, "Send", 1)
	})

	t.Run("sms digest goes to the phone number", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, notification.ChannelSMS, "@hourly")
		f.postpone(t, 1)

		sender := &MockSender{}
		sender.On("Send", mock.Anything, notification.ChannelSMS, "+15550123",
			"comments", "You have 1 new comments").Return(nil).Once()

		s, err := digest.NewScheduler(f.store, f.store, sender, digest.WithLogger(discardLogger()))
		require.NoError(t, err)

		count, err := s.Flush(context.Background(), f.sub)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		sender.AssertExpectations(t)
	})

	t.Run("send failure loses the digest", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, notification.ChannelEmail, "@hourly")
		f.postpone(t, 2)

		sendErr := errors.New("smtp down")
		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(sendErr)

		s, err := digest.NewScheduler(f.store, f.store, sender, digest.WithLogger(discardLogger()))
		require.NoError(t, err)

		count, err := s.Flush(context.Background(), f.sub)
		assert.ErrorIs(t, err, sendErr)
		assert.Equal(t, 2, count)
		assert.Zero(t, f.pending(t))
	})

	t.Run("missing profile is reported", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, notification.ChannelEmail, "@hourly")
		f.postpone(t, 1)

		sender := &MockSender{}
		s, err := digest.NewScheduler(f.store, memory.New(), sender, digest.WithLogger(discardLogger()))
		require.NoError(t, err)

		_, err = s.Flush(context.Background(), f.sub)
		assert.ErrorIs(t, err, notification.ErrNotFound)
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unreachable channel is reported", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, notification.ChannelSMS, "@hourly")
		f.postpone(t, 1)

		profiles := memory.New()
		require.NoError(t, profiles.SaveProfile(context.Background(),
			*notification.NewRecipientProfile(f.sub.RecipientID, "reader@example.com", "", true)))

		sender := &MockSender{}
		s, err := digest.NewScheduler(f.store, profiles, sender, digest.WithLogger(discardLogger()))
		require.NoError(t, err)

		_, err = s.Flush(context.Background(), f.sub)
		assert.ErrorIs(t, err, digest.ErrNoAddress)
	})

	t.Run("locked bucket is left alone", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, notification.ChannelEmail, "@hourly")
		f.postpone(t, 2)

		sender := &MockSender{}
		s, err := digest.NewScheduler(f.store, f.store, sender,
			digest.WithLocker(heldLocker{}),
			digest.WithLogger(discardLogger()))
		require.NoError(t, err)

		count, err := s.Flush(context.Background(), f.sub)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.Equal(t, 2, f.pending(t))
	})

	t.Run("lock is released after flush", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, notification.ChannelEmail, "@hourly")
		f.postpone(t, 1)

		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		locker := &countingLocker{}

		s, err := digest.NewScheduler(f.store, f.store, sender,
			digest.WithLocker(locker),
			digest.WithLogger(discardLogger()))
		require.NoError(t, err)

		_, err = s.Flush(context.Background(), f.sub)
		require.NoError(t, err)
		assert.Equal(t, []string{"digest:" + digest.KeyFor(f.sub).String()}, locker.acquired)
		assert.Equal(t, 1, locker.released)
	})

	t.Run("concurrent flushes drain each entry once", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, notification.ChannelEmail, "@hourly")
		f.postpone(t, 5)

		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

		s, err := digest.NewScheduler(f.store, f.store, sender, digest.WithLogger(discardLogger()))
		require.NoError(t, err)

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			total int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n, err := s.Flush(context.Background(), f.sub)
				assert.NoError(t, err)
				mu.Lock()
				total += n
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Equal(t, 5, total)
		sender.AssertNumberOfCalls(t, "Send", 1)
	})
}

func TestScheduler_Subscriptions(t *testing.T) {
	t.Parallel()

	t.Run("add and remove", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, notification.ChannelEmail, "@hourly")

		s, err := digest.NewScheduler(f.store, f.store, &MockSender{}, digest.WithLogger(discardLogger()))
		require.NoError(t, err)

		require.NoError(t, s.Add(f.sub))
		require.NoError(t, s.Add(f.sub))
		assert.Equal(t, 1, s.Len())

		bad := f.sub
		bad.ID = uuid.New()
		bad.CronExpression = "not a cron"
		assert.ErrorIs(t, s.Add(bad), notification.ErrValidation)
		assert.Equal(t, 1, s.Len())

		s.Remove(f.sub.ID)
		s.Remove(f.sub.ID)
		assert.Zero(t, s.Len())
	})

	t.Run("sync follows the store", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		f := newFixture(t, notification.ChannelEmail, "@hourly")

		s, err := digest.NewScheduler(f.store, f.store, &MockSender{},
			digest.WithSubscriptionLister(f.store),
			digest.WithLogger(discardLogger()))
		require.NoError(t, err)

		require.NoError(t, s.Sync(ctx))
		assert.Equal(t, 1, s.Len())

		require.NoError(t, f.store.ReplaceSubscriptions(ctx, f.sub.RecipientID, nil))
		require.NoError(t, s.Sync(ctx))
		assert.Zero(t, s.Len())
	})

	t.Run("sync without lister", func(t *testing.T) {
		t.Parallel()
		store := memory.New()
		s, err := digest.NewScheduler(store, store, &MockSender{})
		require.NoError(t, err)
		assert.ErrorIs(t, s.Sync(context.Background()), digest.ErrMissingDependency)
	})
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	store := memory.New()
	s, err := digest.NewScheduler(store, store, &MockSender{}, digest.WithLogger(discardLogger()))
	require.NoError(t, err)

	assert.ErrorIs(t, s.Stop(), digest.ErrSchedulerNotStarted)
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), digest.ErrSchedulerStarted)
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), digest.ErrSchedulerNotStarted)
}

func TestScheduler_TimerFlushesBucket(t *testing.T) {
	t.Parallel()
	f := newFixture(t, notification.ChannelEmail, "@every 1s")
	f.postpone(t, 3)

	sent := make(chan string, 4)
	sender := &MockSender{}
	sender.On("Send", mock.Anything, notification.ChannelEmail, "reader@example.com", "comments", mock.Anything).
		Run(func(args mock.Arguments) { sent <- args.String(4) }).
		Return(nil)

	s, err := digest.NewScheduler(f.store, f.store, sender,
		digest.WithSubscriptionLister(f.store),
		digest.WithConfig(digest.Config{RefreshInterval: 50 * time.Millisecond}),
		digest.WithLogger(discardLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	assert.Equal(t, 1, s.Len())

	select {
	case body := <-sent:
		assert.Equal(t, "You have 3 new comments", body)
	case <-time.After(5 * time.Second):
		t.Fatal("digest was not sent")
	}

	require.NoError(t, s.Stop())
	assert.Zero(t, f.pending(t))
	sender.AssertNumberOfCalls(t, "Send", 1)
}
