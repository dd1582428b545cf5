package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// BucketKey identifies one digest bucket.
type BucketKey struct {
	ConfigurationID uuid.UUID            `json:"configuration_id"`
	Channel         notification.Channel `json:"channel"`
	RecipientID     uuid.UUID            `json:"recipient_id"`
}

func (k BucketKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.ConfigurationID, k.Channel, k.RecipientID)
}

// KeyFor returns the bucket a subscription flushes.
func KeyFor(sub notification.DigestSubscription) BucketKey {
	return BucketKey{
		ConfigurationID: sub.Configuration.ID,
		Channel:         sub.PreferredChannel,
		RecipientID:     sub.RecipientID,
	}
}

// Entry is a deferred message waiting for its digest.
type Entry struct {
	ID uuid.UUID `json:"id"`
	BucketKey
	NotificationID uuid.UUID `json:"notification_id"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewEntry copies a message into a bucket entry for the subscription.
func NewEntry(sub notification.DigestSubscription, notificationID uuid.UUID, msg notification.Message) Entry {
	return Entry{
		ID:             uuid.New(),
		BucketKey:      KeyFor(sub),
		NotificationID: notificationID,
		Subject:        msg.Subject,
		Body:           msg.Body,
		CreatedAt:      time.Now().UTC(),
	}
}

// BucketStore holds deferred messages until their digest fires.
type BucketStore interface {
	// Postpone inserts the entry and retires the work item in one transaction.
	Postpone(ctx context.Context, item queue.Key, entry Entry) error

	// Drain atomically reads and deletes every entry in the bucket, oldest first.
	// Concurrent drains of one bucket never return the same entry.
	Drain(ctx context.Context, key BucketKey) ([]Entry, error)

	// Count returns the number of entries waiting in the bucket.
	Count(ctx context.Context, key BucketKey) (int, error)
}
