package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// CreateNotification stores n, its messages and one work item per unsent
// message in one transaction.
func (s *Store) CreateNotification(ctx context.Context, n *notification.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO notifications (id, recipient_id, important, created_at)
			VALUES ($1, $2, $3, $4)`,
			n.ID, n.RecipientID, n.Important, n.CreatedAt,
		); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, m := range n.Messages {
			batch.Queue(`
				INSERT INTO notification_messages
					(notification_id, channel, position, subject, body, tag, sent)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				n.ID, string(m.Channel), i, m.Subject, m.Body, m.Tag, m.Sent,
			)
			if m.Sent {
				continue
			}
			batch.Queue(`
				INSERT INTO work_items
					(notification_id, channel, recipient_id, created_at, available_at)
				VALUES ($1, $2, $3, $4, $4)`,
				n.ID, string(m.Channel), n.RecipientID, n.CreatedAt,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	return mapError("create notification "+n.ID.String(), err)
}

func (s *Store) GetNotification(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	n := &notification.Notification{ID: id}
	err := s.pool.QueryRow(ctx, `
		SELECT recipient_id, important, created_at FROM notifications WHERE id = $1`,
		id,
	).Scan(&n.RecipientID, &n.Important, &n.CreatedAt)
	if err != nil {
		return nil, mapError("get notification "+id.String(), err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT channel, subject, body, tag, sent
		FROM notification_messages
		WHERE notification_id = $1
		ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, mapError("get notification messages", err)
	}
	n.Messages, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (notification.Message, error) {
		var (
			m  notification.Message
			ch string
		)
		err := row.Scan(&ch, &m.Subject, &m.Body, &m.Tag, &m.Sent)
		m.Channel = notification.Channel(ch)
		return m, err
	})
	if err != nil {
		return nil, mapError("scan notification messages", err)
	}
	return n, nil
}

func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, ch notification.Channel) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_messages SET sent = TRUE, sent_at = $3
		WHERE notification_id = $1 AND channel = $2`,
		id, string(ch), s.now().UTC(),
	)
	if err != nil {
		return mapError("mark sent", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s message of notification %s", notification.ErrNotFound, ch, id)
	}
	return nil
}

// ClaimOldest leases the oldest available work item. Rows locked by a
// concurrent claim are skipped rather than waited for.
func (s *Store) ClaimOldest(ctx context.Context, workerID uuid.UUID, lease time.Duration) (*queue.WorkItem, error) {
	now := s.now().UTC()

	var (
		item queue.WorkItem
		ch   string
	)
	err := s.pool.QueryRow(ctx, `
		UPDATE work_items w
		SET locked_until = $2, locked_by = $3
		FROM (
			SELECT notification_id, channel
			FROM work_items
			WHERE available_at <= $1
			  AND (locked_until IS NULL OR locked_until <= $1)
			ORDER BY created_at, seq
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		) next
		WHERE w.notification_id = next.notification_id AND w.channel = next.channel
		RETURNING w.notification_id, w.channel, w.recipient_id, w.created_at, w.seq,
			w.available_at, w.locked_until, w.locked_by`,
		now, now.Add(lease), workerID,
	).Scan(&item.NotificationID, &ch, &item.RecipientID, &item.CreatedAt, &item.Seq,
		&item.AvailableAt, &item.LockedUntil, &item.LockedBy)
	if pg.IsNotFoundError(err) {
		return nil, queue.ErrNoWorkItem
	}
	if err != nil {
		return nil, mapError("claim work item", err)
	}
	item.Channel = notification.Channel(ch)
	return &item, nil
}

func (s *Store) Retire(ctx context.Context, key queue.Key) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM work_items WHERE notification_id = $1 AND channel = $2`,
		key.NotificationID, string(key.Channel),
	)
	return mapError("retire "+key.String(), err)
}

func (s *Store) Release(ctx context.Context, key queue.Key, delay time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE work_items
		SET locked_until = NULL, locked_by = NULL, available_at = $3
		WHERE notification_id = $1 AND channel = $2`,
		key.NotificationID, string(key.Channel), s.now().UTC().Add(delay),
	)
	return mapError("release "+key.String(), err)
}
