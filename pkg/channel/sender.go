package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Sender delivers one message over one channel. Implementations hold no
// eligibility logic; transport failures are returned as *DeliveryError.
type Sender interface {
	Channel() notification.Channel
	Send(ctx context.Context, address, subject, body string) error
}

// SenderFunc adapts a function to Sender for the given channel.
func SenderFunc(ch notification.Channel, fn func(ctx context.Context, address, subject, body string) error) Sender {
	return senderFunc{ch: ch, fn: fn}
}

type senderFunc struct {
	ch notification.Channel
	fn func(ctx context.Context, address, subject, body string) error
}

func (s senderFunc) Channel() notification.Channel { return s.ch }

func (s senderFunc) Send(ctx context.Context, address, subject, body string) error {
	return s.fn(ctx, address, subject, body)
}

// Registry selects senders by channel. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	senders map[notification.Channel]Sender
}

// NewRegistry returns a registry holding the given senders.
// A later sender replaces an earlier one for the same channel.
func NewRegistry(senders ...Sender) *Registry {
	r := &Registry{senders: make(map[notification.Channel]Sender, len(senders))}
	for _, s := range senders {
		r.Register(s)
	}
	return r
}

// Register adds or replaces the sender for its channel. Nil senders are ignored.
func (r *Registry) Register(s Sender) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[s.Channel()] = s
}

// Get returns the sender for the channel.
func (r *Registry) Get(ch notification.Channel) (Sender, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSender, ch)
	}
	return s, nil
}

// Channels lists the channels that have a sender.
func (r *Registry) Channels() []notification.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]notification.Channel, 0, len(r.senders))
	for _, ch := range notification.Channels() {
		if _, ok := r.senders[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Send looks up the channel's sender and delivers the message.
func (r *Registry) Send(ctx context.Context, ch notification.Channel, address, subject, body string) error {
	s, err := r.Get(ch)
	if err != nil {
		return NewDeliveryError(ch, true, err)
	}
	return s.Send(ctx, address, subject, body)
}
