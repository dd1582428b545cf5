package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// Postpone adds the entry to its bucket and retires the work item in one
// transaction.
func (s *Store) Postpone(ctx context.Context, item queue.Key, entry digest.Entry) error {
	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM work_items WHERE notification_id = $1 AND channel = $2`,
			item.NotificationID, string(item.Channel),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: work item %s", notification.ErrNotFound, item)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO digest_entries
				(id, configuration_id, channel, recipient_id, notification_id, subject, body, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			entry.ID, entry.ConfigurationID, string(entry.Channel), entry.RecipientID,
			entry.NotificationID, entry.Subject, entry.Body, entry.CreatedAt,
		)
		return err
	})
	return mapError("postpone "+item.String(), err)
}

// Drain deletes and returns the bucket's entries, oldest first. The advisory
// lock serialises drains of one bucket across connections.
func (s *Store) Drain(ctx context.Context, key digest.BucketKey) ([]digest.Entry, error) {
	var entries []digest.Entry
	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			WITH drained AS (
				DELETE FROM digest_entries
				WHERE configuration_id = $1 AND channel = $2 AND recipient_id = $3
				RETURNING id, notification_id, subject, body, created_at, seq
			)
			SELECT id, notification_id, subject, body, created_at FROM drained ORDER BY seq`,
			key.ConfigurationID, string(key.Channel), key.RecipientID,
		)
		if err != nil {
			return err
		}
		entries, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (digest.Entry, error) {
			e := digest.Entry{BucketKey: key}
			err := row.Scan(&e.ID, &e.NotificationID, &e.Subject, &e.Body, &e.CreatedAt)
			return e, err
		})
		return err
	})
	if err != nil {
		return nil, mapError("drain bucket "+key.String(), err)
	}
	return entries, nil
}

func (s *Store) Count(ctx context.Context, key digest.BucketKey) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM digest_entries
		WHERE configuration_id = $1 AND channel = $2 AND recipient_id = $3`,
		key.ConfigurationID, string(key.Channel), key.RecipientID,
	).Scan(&n)
	if err != nil {
		return 0, mapError("count bucket "+key.String(), err)
	}
	return n, nil
}
