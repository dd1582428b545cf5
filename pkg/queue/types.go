package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Key identifies a work item: one per (notification, channel) pair.
type Key struct {
	NotificationID uuid.UUID            `json:"notification_id"`
	Channel        notification.Channel `json:"channel"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.NotificationID, k.Channel)
}

// WorkItem is a pending delivery for one channel of a notification.
type WorkItem struct {
	Key
	RecipientID uuid.UUID  `json:"recipient_id"`
	CreatedAt   time.Time  `json:"created_at"`
	Seq         int64      `json:"seq"`
	AvailableAt time.Time  `json:"available_at"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`
}

// Repository is the storage contract of the work queue.
// Items are enqueued by notification.NotificationStore.CreateNotification.
type Repository interface {
	// ClaimOldest leases the oldest available item (creation time, then
	// insertion order) to workerID. A leased item is invisible to other claims
	// until it is retired, released or its lease expires.
	// Returns ErrNoWorkItem when nothing is available.
	ClaimOldest(ctx context.Context, workerID uuid.UUID, lease time.Duration) (*WorkItem, error)

	// Retire deletes the item. Retiring a missing key is not an error.
	Retire(ctx context.Context, key Key) error

	// Release drops the lease and hides the item for delay.
	Release(ctx context.Context, key Key, delay time.Duration) error
}

// Handler processes a claimed work item. The handler owns the item's
// disposal: it must retire or release it before returning.
type Handler interface {
	Handle(ctx context.Context, item *WorkItem) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, item *WorkItem) error

func (f HandlerFunc) Handle(ctx context.Context, item *WorkItem) error {
	return f(ctx, item)
}
