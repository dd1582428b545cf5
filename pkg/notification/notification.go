package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Notification is an immutable envelope holding one message per channel.
type Notification struct {
	ID          uuid.UUID `json:"id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Important   bool      `json:"important"`
	Messages    []Message `json:"messages"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message is the per-channel content of a notification.
// Tag names the digest configuration it may be consolidated under.
type Message struct {
	Channel Channel `json:"channel"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Tag     string  `json:"tag,omitempty"`
	Sent    bool    `json:"sent"`
}

// Validate checks the notification is fit to be queued.
func (n *Notification) Validate() error {
	if n == nil {
		return fmt.Errorf("%w: notification is nil", ErrValidation)
	}
	if n.RecipientID == uuid.Nil {
		return fmt.Errorf("%w: recipient id is required", ErrValidation)
	}
	if len(n.Messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", ErrValidation)
	}

	seen := make(map[Channel]struct{}, len(n.Messages))
	for _, m := range n.Messages {
		if !m.Channel.Valid() {
			return fmt.Errorf("%w: unknown channel %q", ErrValidation, m.Channel)
		}
		if _, dup := seen[m.Channel]; dup {
			return fmt.Errorf("%w: duplicate channel %s", ErrConstraintViolation, m.Channel)
		}
		seen[m.Channel] = struct{}{}
	}
	return nil
}

// Message returns the message for the given channel.
func (n *Notification) Message(ch Channel) (Message, bool) {
	for _, m := range n.Messages {
		if m.Channel == ch {
			return m, true
		}
	}
	return Message{}, false
}

// Channels returns the channels the notification carries messages for.
func (n *Notification) Channels() []Channel {
	out := make([]Channel, 0, len(n.Messages))
	for _, m := range n.Messages {
		out = append(out, m.Channel)
	}
	return out
}
