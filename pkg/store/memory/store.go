package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// Store keeps every repository of the dispatch pipeline in memory.
// One mutex guards all state, so each method is atomic with respect to the
// others. Intended for tests and local development.
type Store struct {
	mu sync.Mutex

	profiles       map[uuid.UUID]notification.RecipientProfile
	configurations map[uuid.UUID]notification.DigestConfiguration
	subscriptions  map[uuid.UUID]notification.DigestSubscription
	notifications  map[uuid.UUID]*notification.Notification
	items          map[queue.Key]*queue.WorkItem
	buckets        map[digest.BucketKey][]digest.Entry

	seq int64
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for leases and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		profiles:       make(map[uuid.UUID]notification.RecipientProfile),
		configurations: make(map[uuid.UUID]notification.DigestConfiguration),
		subscriptions:  make(map[uuid.UUID]notification.DigestSubscription),
		notifications:  make(map[uuid.UUID]*notification.Notification),
		items:          make(map[queue.Key]*queue.WorkItem),
		buckets:        make(map[digest.BucketKey][]digest.Entry),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Profiles

// SaveProfile creates or replaces a recipient profile. Emails are unique
// across recipients.
func (s *Store) SaveProfile(_ context.Context, p notification.RecipientProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Email != "" {
		for id, other := range s.profiles {
			if id != p.RecipientID && strings.EqualFold(other.Email, p.Email) {
				return fmt.Errorf("%w: email %q already in use", notification.ErrConstraintViolation, p.Email)
			}
		}
	}
	s.profiles[p.RecipientID] = p
	return nil
}

func (s *Store) GetProfile(_ context.Context, recipientID uuid.UUID) (*notification.RecipientProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[recipientID]
	if !ok {
		return nil, fmt.Errorf("%w: recipient profile %s", notification.ErrNotFound, recipientID)
	}
	return &p, nil
}

// Digest configurations and subscriptions

// CreateConfiguration stores a digest configuration. Tags are unique.
func (s *Store) CreateConfiguration(_ context.Context, cfg notification.DigestConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.configurations {
		if c.Tag == cfg.Tag {
			return fmt.Errorf("%w: digest tag %q already exists", notification.ErrConstraintViolation, cfg.Tag)
		}
	}
	s.configurations[cfg.ID] = cfg
	return nil
}

// EnsureConfiguration returns the configuration for cfg.Tag, creating it
// when missing.
func (s *Store) EnsureConfiguration(_ context.Context, cfg notification.DigestConfiguration) (*notification.DigestConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.configurations {
		if c.Tag == cfg.Tag {
			return &c, nil
		}
	}
	s.configurations[cfg.ID] = cfg
	return &cfg, nil
}

func (s *Store) FindConfigurationByTag(_ context.Context, tag string) (*notification.DigestConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.configurations {
		if c.Tag == tag {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: digest configuration %q", notification.ErrNotFound, tag)
}

// ReplaceSubscriptions makes subs the complete subscription set of the
// recipient. Every referenced configuration must exist and each tag may
// appear once.
func (s *Store) ReplaceSubscriptions(_ context.Context, recipientID uuid.UUID, subs []notification.DigestSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags := make(map[string]struct{}, len(subs))
	for _, sub := range subs {
		if _, ok := s.configurations[sub.Configuration.ID]; !ok {
			return fmt.Errorf("%w: digest configuration %q", notification.ErrNotFound, sub.Configuration.Tag)
		}
		if _, dup := tags[sub.Configuration.Tag]; dup {
			return fmt.Errorf("%w: duplicate subscription for tag %q", notification.ErrConstraintViolation, sub.Configuration.Tag)
		}
		tags[sub.Configuration.Tag] = struct{}{}
	}

	for id, sub := range s.subscriptions {
		if sub.RecipientID == recipientID {
			delete(s.subscriptions, id)
		}
	}
	for _, sub := range subs {
		sub.RecipientID = recipientID
		s.subscriptions[sub.ID] = sub
	}
	return nil
}

func (s *Store) FindSubscriptionsByRecipient(_ context.Context, recipientID uuid.UUID) ([]notification.DigestSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []notification.DigestSubscription
	for _, sub := range s.subscriptions {
		if sub.RecipientID == recipientID {
			out = append(out, sub)
		}
	}
	sortSubscriptions(out)
	return out, nil
}

// ListSubscriptions returns every active subscription.
func (s *Store) ListSubscriptions(_ context.Context) ([]notification.DigestSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]notification.DigestSubscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		out = append(out, sub)
	}
	sortSubscriptions(out)
	return out, nil
}

func sortSubscriptions(subs []notification.DigestSubscription) {
	slices.SortFunc(subs, func(a, b notification.DigestSubscription) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}

var (
	_ notification.ProfileStore      = (*Store)(nil)
	_ notification.SubscriptionStore = (*Store)(nil)
	_ notification.NotificationStore = (*Store)(nil)
	_ queue.Repository               = (*Store)(nil)
	_ digest.BucketStore             = (*Store)(nil)
)
