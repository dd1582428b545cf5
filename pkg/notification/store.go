package notification

import (
	"context"

	"github.com/google/uuid"
)

// ProfileStore reads recipient contact details.
type ProfileStore interface {
	// GetProfile returns ErrNotFound when the recipient has no profile.
	GetProfile(ctx context.Context, recipientID uuid.UUID) (*RecipientProfile, error)
}

// SubscriptionStore reads digest subscriptions and configurations.
type SubscriptionStore interface {
	FindSubscriptionsByRecipient(ctx context.Context, recipientID uuid.UUID) ([]DigestSubscription, error)
	// FindConfigurationByTag returns ErrNotFound for unknown tags.
	FindConfigurationByTag(ctx context.Context, tag string) (*DigestConfiguration, error)
}

// NotificationStore persists notifications.
type NotificationStore interface {
	// CreateNotification stores the notification and one work item per message
	// in a single transaction.
	CreateNotification(ctx context.Context, n *Notification) error
	// GetNotification returns ErrNotFound when the id is unknown.
	GetNotification(ctx context.Context, id uuid.UUID) (*Notification, error)
	// MarkSent flags the channel's message as sent.
	MarkSent(ctx context.Context, id uuid.UUID, ch Channel) error
}
