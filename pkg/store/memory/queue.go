package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// CreateNotification stores n and one work item per message.
func (s *Store) CreateNotification(_ context.Context, n *notification.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notifications[n.ID]; exists {
		return fmt.Errorf("%w: notification %s already exists", notification.ErrConstraintViolation, n.ID)
	}

	s.notifications[n.ID] = cloneNotification(n)
	for _, m := range n.Messages {
		if m.Sent {
			continue
		}
		s.seq++
		key := queue.Key{NotificationID: n.ID, Channel: m.Channel}
		s.items[key] = &queue.WorkItem{
			Key:         key,
			RecipientID: n.RecipientID,
			CreatedAt:   n.CreatedAt,
			Seq:         s.seq,
			AvailableAt: n.CreatedAt,
		}
	}
	return nil
}

func (s *Store) GetNotification(_ context.Context, id uuid.UUID) (*notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, fmt.Errorf("%w: notification %s", notification.ErrNotFound, id)
	}
	return cloneNotification(n), nil
}

func (s *Store) MarkSent(_ context.Context, id uuid.UUID, ch notification.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return fmt.Errorf("%w: notification %s", notification.ErrNotFound, id)
	}
	for i := range n.Messages {
		if n.Messages[i].Channel == ch {
			n.Messages[i].Sent = true
			return nil
		}
	}
	return fmt.Errorf("%w: %s message of notification %s", notification.ErrNotFound, ch, id)
}

// ClaimOldest leases the oldest available work item.
func (s *Store) ClaimOldest(_ context.Context, workerID uuid.UUID, lease time.Duration) (*queue.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var best *queue.WorkItem
	for _, item := range s.items {
		if item.AvailableAt.After(now) {
			continue
		}
		if item.LockedUntil != nil && item.LockedUntil.After(now) {
			continue
		}
		if best == nil || older(item, best) {
			best = item
		}
	}
	if best == nil {
		return nil, queue.ErrNoWorkItem
	}

	until := now.Add(lease)
	worker := workerID
	best.LockedUntil = &until
	best.LockedBy = &worker

	claimed := *best
	return &claimed, nil
}

func older(a, b *queue.WorkItem) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Seq < b.Seq
}

func (s *Store) Retire(_ context.Context, key queue.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

func (s *Store) Release(_ context.Context, key queue.Key, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok {
		return nil
	}
	item.LockedUntil = nil
	item.LockedBy = nil
	item.AvailableAt = s.now().Add(delay)
	return nil
}

// PendingItems returns the number of work items still queued.
func (s *Store) PendingItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Digest buckets

// Postpone adds the entry to its bucket and retires the work item.
func (s *Store) Postpone(_ context.Context, item queue.Key, entry digest.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item]; !ok {
		return fmt.Errorf("%w: work item %s", notification.ErrNotFound, item)
	}
	s.buckets[entry.BucketKey] = append(s.buckets[entry.BucketKey], entry)
	delete(s.items, item)
	return nil
}

func (s *Store) Drain(_ context.Context, key digest.BucketKey) ([]digest.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.buckets[key]
	delete(s.buckets, key)
	return entries, nil
}

func (s *Store) Count(_ context.Context, key digest.BucketKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets[key]), nil
}

func cloneNotification(n *notification.Notification) *notification.Notification {
	c := *n
	c.Messages = append([]notification.Message(nil), n.Messages...)
	return &c
}
