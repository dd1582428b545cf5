package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/pg"
)

// CreateConfiguration stores a digest configuration. Tags are unique.
func (s *Store) CreateConfiguration(ctx context.Context, cfg notification.DigestConfiguration) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO digest_configurations (id, tag, message, created_at)
		VALUES ($1, $2, $3, $4)`,
		cfg.ID, cfg.Tag, cfg.Message, s.now().UTC(),
	)
	return mapError("create digest configuration", err)
}

// EnsureConfiguration returns the configuration for cfg.Tag, creating it
// when missing.
func (s *Store) EnsureConfiguration(ctx context.Context, cfg notification.DigestConfiguration) (*notification.DigestConfiguration, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO digest_configurations (id, tag, message, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tag) DO NOTHING`,
		cfg.ID, cfg.Tag, cfg.Message, s.now().UTC(),
	)
	if err != nil {
		return nil, mapError("ensure digest configuration", err)
	}
	return s.FindConfigurationByTag(ctx, cfg.Tag)
}

func (s *Store) FindConfigurationByTag(ctx context.Context, tag string) (*notification.DigestConfiguration, error) {
	cfg := notification.DigestConfiguration{Tag: tag}
	err := s.pool.QueryRow(ctx, `
		SELECT id, message FROM digest_configurations WHERE tag = $1`,
		tag,
	).Scan(&cfg.ID, &cfg.Message)
	if err != nil {
		return nil, mapError(fmt.Sprintf("find digest configuration %q", tag), err)
	}
	return &cfg, nil
}

// ReplaceSubscriptions makes subs the complete subscription set of the
// recipient. Every referenced configuration must exist and each tag may
// appear once.
func (s *Store) ReplaceSubscriptions(ctx context.Context, recipientID uuid.UUID, subs []notification.DigestSubscription) error {
	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM digest_subscriptions WHERE recipient_id = $1`, recipientID); err != nil {
			return err
		}
		for _, sub := range subs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO digest_subscriptions
					(id, recipient_id, configuration_id, preferred_channel, cron_expression, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				sub.ID, recipientID, sub.Configuration.ID, string(sub.PreferredChannel), sub.CronExpression, s.now().UTC(),
			); err != nil {
				return err
			}
		}
		return nil
	})
	return mapError("replace subscriptions", err)
}

const selectSubscriptions = `
	SELECT s.id, s.recipient_id, s.preferred_channel, s.cron_expression,
		c.id, c.tag, c.message
	FROM digest_subscriptions s
	JOIN digest_configurations c ON c.id = s.configuration_id`

func (s *Store) FindSubscriptionsByRecipient(ctx context.Context, recipientID uuid.UUID) ([]notification.DigestSubscription, error) {
	rows, err := s.pool.Query(ctx, selectSubscriptions+` WHERE s.recipient_id = $1 ORDER BY s.id`, recipientID)
	if err != nil {
		return nil, mapError("find subscriptions", err)
	}
	return collectSubscriptions(rows)
}

// ListSubscriptions returns every active subscription.
func (s *Store) ListSubscriptions(ctx context.Context) ([]notification.DigestSubscription, error) {
	rows, err := s.pool.Query(ctx, selectSubscriptions+` ORDER BY s.id`)
	if err != nil {
		return nil, mapError("list subscriptions", err)
	}
	return collectSubscriptions(rows)
}

func collectSubscriptions(rows pgx.Rows) ([]notification.DigestSubscription, error) {
	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (notification.DigestSubscription, error) {
		var (
			sub notification.DigestSubscription
			ch  string
		)
		err := row.Scan(&sub.ID, &sub.RecipientID, &ch, &sub.CronExpression,
			&sub.Configuration.ID, &sub.Configuration.Tag, &sub.Configuration.Message)
		sub.PreferredChannel = notification.Channel(ch)
		return sub, err
	})
	if err != nil {
		return nil, mapError("scan subscriptions", err)
	}
	return subs, nil
}
