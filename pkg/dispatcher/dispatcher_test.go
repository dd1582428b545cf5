package dispatcher_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/feature"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/store/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sentMessage struct {
	channel notification.Channel
	address string
	subject string
	body    string
}

// recorder collects everything the senders were asked to deliver.
type recorder struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (r *recorder) sender(ch notification.Channel) channel.Sender {
	return channel.SenderFunc(ch, func(_ context.Context, address, subject, body string) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.sent = append(r.sent, sentMessage{channel: ch, address: address, subject: subject, body: body})
		return nil
	})
}

func (r *recorder) messages() []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMessage(nil), r.sent...)
}

type transition struct {
	key      queue.Key
	from, to dispatcher.Stage
}

type harness struct {
	store    *memory.Store
	rec      *recorder
	d        *dispatcher.Dispatcher
	events   chan transition
	decision map[queue.Key]dispatcher.Stage
}

func newHarness(t *testing.T, consolidation bool) *harness {
	t.Helper()

	h := &harness{
		store:    memory.New(),
		rec:      &recorder{},
		events:   make(chan transition, 256),
		decision: make(map[queue.Key]dispatcher.Stage),
	}
	registry := channel.NewRegistry(
		h.rec.sender(notification.ChannelEmail),
		h.rec.sender(notification.ChannelSMS),
	)

	d, err := dispatcher.New(h.store, registry, feature.Static(consolidation),
		dispatcher.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		dispatcher.WithObserver(func(key queue.Key, from, to dispatcher.Stage) {
			h.events <- transition{key: key, from: from, to: to}
		}),
		dispatcher.WithWorkerOptions(queue.WithPollInterval(time.Hour)),
	)
	require.NoError(t, err)
	h.d = d

	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop() })
	return h
}

// waitRetired blocks until n work items reach RETIRED and returns the
// decision each one took.
func (h *harness) waitRetired(t *testing.T, n int) map[queue.Key]dispatcher.Stage {
	t.Helper()

	retired := 0
	timeout := time.After(5 * time.Second)
	for retired < n {
		select {
		case ev := <-h.events:
			if ev.to.IsDecision() {
				h.decision[ev.key] = ev.to
			}
			if ev.to == dispatcher.StageRetired {
				retired++
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %d retired work items, got %d", n, retired)
		}
	}
	return h.decision
}

func (h *harness) saveProfile(t *testing.T, allowNotify bool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	p := notification.NewRecipientProfile(id, "User@Example.com", "+15550100", true)
	p.AllowNotify = allowNotify
	require.NoError(t, h.store.SaveProfile(context.Background(), *p))
	return id
}

func (h *harness) subscribe(t *testing.T, recipientID uuid.UUID, tag string, ch notification.Channel) notification.DigestSubscription {
	t.Helper()
	ctx := context.Background()

	cfg, err := notification.NewDigestConfiguration(tag, "You have ${count} new "+tag)
	require.NoError(t, err)
	stored, err := h.store.EnsureConfiguration(ctx, *cfg)
	require.NoError(t, err)

	sub, err := notification.NewDigestSubscription(recipientID, *stored, ch, "0 0 9 * * *")
	require.NoError(t, err)
	require.NoError(t, h.store.ReplaceSubscriptions(ctx, recipientID, []notification.DigestSubscription{*sub}))
	return *sub
}

func message(ch notification.Channel, tag string) notification.Message {
	return notification.Message{Channel: ch, Subject: "subject " + string(ch), Body: "body", Tag: tag}
}

func TestNew_MissingDependencies(t *testing.T) {
	t.Parallel()

	registry := channel.NewRegistry()
	toggle := feature.Static(true)

	_, err := dispatcher.New(nil, registry, toggle)
	assert.ErrorIs(t, err, dispatcher.ErrMissingDependency)

	_, err = dispatcher.New(memory.New(), nil, toggle)
	assert.ErrorIs(t, err, dispatcher.ErrMissingDependency)

	_, err = dispatcher.New(memory.New(), registry, nil)
	assert.ErrorIs(t, err, dispatcher.ErrMissingDependency)
}

func TestDispatcher_Submit(t *testing.T) {
	t.Parallel()

	t.Run("rejects invalid notifications", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, true)

		err := h.d.Submit(context.Background(), nil)
		assert.ErrorIs(t, err, notification.ErrValidation)

		err = h.d.Submit(context.Background(), &notification.Notification{RecipientID: uuid.New()})
		assert.ErrorIs(t, err, notification.ErrValidation)

		err = h.d.Submit(context.Background(), &notification.Notification{
			RecipientID: uuid.New(),
			Messages:    []notification.Message{message(notification.ChannelEmail, ""), message(notification.ChannelEmail, "")},
		})
		assert.ErrorIs(t, err, notification.ErrConstraintViolation)
		assert.Zero(t, h.store.PendingItems())
	})

	t.Run("assigns identity and timestamp", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, true)
		recipient := h.saveProfile(t, true)

		n := &notification.Notification{
			RecipientID: recipient,
			Messages:    []notification.Message{message(notification.ChannelEmail, "")},
		}
		require.NoError(t, h.d.Submit(context.Background(), n))
		assert.NotEqual(t, uuid.Nil, n.ID)
		assert.False(t, n.CreatedAt.IsZero())
		assert.Equal(t, time.UTC, n.CreatedAt.Location())

		h.waitRetired(t, 1)
	})
}

func TestDispatcher_ImmediateDelivery(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	ctx := context.Background()
	recipient := h.saveProfile(t, true)

	n := &notification.Notification{
		RecipientID: recipient,
		Messages:    []notification.Message{message(notification.ChannelEmail, "")},
	}
	require.NoError(t, h.d.Submit(ctx, n))

	decisions := h.waitRetired(t, 1)
	assert.Equal(t, dispatcher.StageSent, decisions[queue.Key{NotificationID: n.ID, Channel: notification.ChannelEmail}])

	sent := h.rec.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "user@example.com", sent[0].address)
	assert.Equal(t, "subject EMAIL", sent[0].subject)

	stored, err := h.store.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	msg, ok := stored.Message(notification.ChannelEmail)
	require.True(t, ok)
	assert.True(t, msg.Sent)
	assert.Zero(t, h.store.PendingItems())
}

func TestDispatcher_NonDefaultChannelWithoutSubscription(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	recipient := h.saveProfile(t, true)

	n := &notification.Notification{
		RecipientID: recipient,
		Messages: []notification.Message{
			message(notification.ChannelEmail, "comments"),
			message(notification.ChannelSMS, "comments"),
		},
	}
	require.NoError(t, h.d.Submit(context.Background(), n))

	decisions := h.waitRetired(t, 2)
	assert.Equal(t, dispatcher.StageSent, decisions[queue.Key{NotificationID: n.ID, Channel: notification.ChannelEmail}])
	assert.Equal(t, dispatcher.StageSuppressed, decisions[queue.Key{NotificationID: n.ID, Channel: notification.ChannelSMS}])

	sent := h.rec.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, notification.ChannelEmail, sent[0].channel)
}

func TestDispatcher_DeferIntoDigest(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	ctx := context.Background()
	recipient := h.saveProfile(t, true)
	sub := h.subscribe(t, recipient, "comments", notification.ChannelEmail)

	for range 3 {
		require.NoError(t, h.d.Submit(ctx, &notification.Notification{
			RecipientID: recipient,
			Messages: []notification.Message{
				message(notification.ChannelEmail, "comments"),
				message(notification.ChannelSMS, "comments"),
			},
		}))
	}

	decisions := h.waitRetired(t, 6)
	deferred, suppressed := 0, 0
	for key, stage := range decisions {
		switch stage {
		case dispatcher.StageDeferred:
			assert.Equal(t, notification.ChannelEmail, key.Channel)
			deferred++
		case dispatcher.StageSuppressed:
			assert.Equal(t, notification.ChannelSMS, key.Channel)
			suppressed++
		}
	}
	assert.Equal(t, 3, deferred)
	assert.Equal(t, 3, suppressed)
	assert.Empty(t, h.rec.messages())

	count, err := h.store.Count(ctx, digest.KeyFor(sub))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Zero(t, h.store.PendingItems())
}

func TestDispatcher_ConsolidationDisabledSendsImmediately(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	ctx := context.Background()
	recipient := h.saveProfile(t, true)
	sub := h.subscribe(t, recipient, "comments", notification.ChannelSMS)

	n := &notification.Notification{
		RecipientID: recipient,
		Messages:    []notification.Message{message(notification.ChannelSMS, "comments")},
	}
	require.NoError(t, h.d.Submit(ctx, n))

	decisions := h.waitRetired(t, 1)
	assert.Equal(t, dispatcher.StageSent, decisions[queue.Key{NotificationID: n.ID, Channel: notification.ChannelSMS}])

	sent := h.rec.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "+15550100", sent[0].address)

	count, err := h.store.Count(ctx, digest.KeyFor(sub))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDispatcher_ImportantBypassesPreferences(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	recipient := h.saveProfile(t, false)
	h.subscribe(t, recipient, "security", notification.ChannelEmail)

	n := &notification.Notification{
		RecipientID: recipient,
		Important:   true,
		Messages: []notification.Message{
			message(notification.ChannelEmail, "security"),
			message(notification.ChannelSMS, "security"),
		},
	}
	require.NoError(t, h.d.Submit(context.Background(), n))

	decisions := h.waitRetired(t, 2)
	for _, ch := range []notification.Channel{notification.ChannelEmail, notification.ChannelSMS} {
		assert.Equal(t, dispatcher.StageSent, decisions[queue.Key{NotificationID: n.ID, Channel: ch}])
	}
	assert.Len(t, h.rec.messages(), 2)
}

func TestDispatcher_NothingSentWhenNotificationsDisabled(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	recipient := h.saveProfile(t, false)
	h.subscribe(t, recipient, "comments", notification.ChannelEmail)

	tags := []string{"", "comments", "unknown"}
	for _, tag := range tags {
		require.NoError(t, h.d.Submit(context.Background(), &notification.Notification{
			RecipientID: recipient,
			Messages: []notification.Message{
				message(notification.ChannelEmail, tag),
				message(notification.ChannelSMS, tag),
			},
		}))
	}

	decisions := h.waitRetired(t, 2*len(tags))
	for key, stage := range decisions {
		assert.Equal(t, dispatcher.StageSuppressed, stage, key.String())
	}
	assert.Empty(t, h.rec.messages())
}

func TestDispatcher_UnknownRecipientIsSuppressed(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)

	n := &notification.Notification{
		RecipientID: uuid.New(),
		Important:   true,
		Messages:    []notification.Message{message(notification.ChannelEmail, "")},
	}
	require.NoError(t, h.d.Submit(context.Background(), n))

	decisions := h.waitRetired(t, 1)
	assert.Equal(t, dispatcher.StageSuppressed, decisions[queue.Key{NotificationID: n.ID, Channel: notification.ChannelEmail}])
	assert.Empty(t, h.rec.messages())
}

func TestDispatcher_AlreadySentMessageIsNotResent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	ctx := context.Background()
	recipient := h.saveProfile(t, true)

	// Simulates a replay after the message went out but before the item was retired.
	n := &notification.Notification{
		ID:          uuid.New(),
		RecipientID: recipient,
		CreatedAt:   time.Now().UTC(),
		Messages:    []notification.Message{message(notification.ChannelEmail, "")},
	}
	require.NoError(t, h.store.CreateNotification(ctx, n))
	require.NoError(t, h.store.MarkSent(ctx, n.ID, notification.ChannelEmail))
	h.d.Notify()

	decisions := h.waitRetired(t, 1)
	assert.Equal(t, dispatcher.StageSuppressed, decisions[queue.Key{NotificationID: n.ID, Channel: notification.ChannelEmail}])
	assert.Empty(t, h.rec.messages())
}

func TestDispatcher_FailedSendIsRetired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.New()
	events := make(chan dispatcher.Stage, 16)

	var attempts int
	var mu sync.Mutex
	registry := channel.NewRegistry(channel.SenderFunc(notification.ChannelEmail,
		func(context.Context, string, string, string) error {
			mu.Lock()
			attempts++
			mu.Unlock()
			return channel.NewDeliveryError(notification.ChannelEmail, false, assert.AnError)
		}))

	d, err := dispatcher.New(store, registry, feature.Static(true),
		dispatcher.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		dispatcher.WithObserver(func(_ queue.Key, _, to dispatcher.Stage) { events <- to }),
	)
	require.NoError(t, err)
	require.NoError(t, d.Start(ctx))
	defer func() { _ = d.Stop() }()

	recipient := uuid.New()
	require.NoError(t, store.SaveProfile(ctx, *notification.NewRecipientProfile(recipient, "a@example.com", "", true)))
	require.NoError(t, d.Submit(ctx, &notification.Notification{
		RecipientID: recipient,
		Messages:    []notification.Message{message(notification.ChannelEmail, "")},
	}))

	var seen []dispatcher.Stage
	timeout := time.After(5 * time.Second)
	for len(seen) == 0 || seen[len(seen)-1] != dispatcher.StageRetired {
		select {
		case s := <-events:
			seen = append(seen, s)
		case <-timeout:
			t.Fatalf("timed out, saw %v", seen)
		}
	}

	assert.Equal(t, []dispatcher.Stage{dispatcher.StageEvaluated, dispatcher.StageSent, dispatcher.StageRetired}, seen)
	mu.Lock()
	assert.Equal(t, 1, attempts)
	mu.Unlock()
	assert.Zero(t, store.PendingItems())
}

func TestDispatcher_SlowSendOutlivingLeaseIsSentOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.New()

	var calls atomic.Int32
	registry := channel.NewRegistry(channel.SenderFunc(notification.ChannelEmail,
		func(ctx context.Context, _, _, _ string) error {
			calls.Add(1)
			select {
			case <-time.After(400 * time.Millisecond):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}))

	d, err := dispatcher.New(store, registry, feature.Static(true),
		dispatcher.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		dispatcher.WithWorkerOptions(
			queue.WithLockTimeout(100*time.Millisecond),
			queue.WithPollInterval(20*time.Millisecond),
		),
	)
	require.NoError(t, err)
	require.NoError(t, d.Start(ctx))
	defer func() { _ = d.Stop() }()

	recipient := uuid.New()
	require.NoError(t, store.SaveProfile(ctx, *notification.NewRecipientProfile(recipient, "a@example.com", "", true)))
	n := &notification.Notification{
		RecipientID: recipient,
		Messages:    []notification.Message{message(notification.ChannelEmail, "")},
	}
	require.NoError(t, d.Submit(ctx, n))

	require.Eventually(t, func() bool { return store.PendingItems() == 0 }, 5*time.Second, 10*time.Millisecond)
	// Give the poll loop a few more lease periods to re-claim anything left behind.
	time.Sleep(300 * time.Millisecond)

	assert.Equal(t, int32(1), calls.Load())
	stored, err := store.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	msg, ok := stored.Message(notification.ChannelEmail)
	require.True(t, ok)
	assert.True(t, msg.Sent)
}
