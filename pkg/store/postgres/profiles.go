package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// SaveProfile creates or replaces a recipient profile. Emails are unique
// across recipients, compared case-insensitively.
func (s *Store) SaveProfile(ctx context.Context, p notification.RecipientProfile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO recipient_profiles
			(recipient_id, email, phone_number, email_verified, allow_notify, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (recipient_id) DO UPDATE SET
			email = EXCLUDED.email,
			phone_number = EXCLUDED.phone_number,
			email_verified = EXCLUDED.email_verified,
			allow_notify = EXCLUDED.allow_notify,
			updated_at = EXCLUDED.updated_at`,
		p.RecipientID, p.Email, p.PhoneNumber, p.EmailVerified, p.AllowNotify, s.now().UTC(),
	)
	return mapError("save profile", err)
}

func (s *Store) GetProfile(ctx context.Context, recipientID uuid.UUID) (*notification.RecipientProfile, error) {
	p := notification.RecipientProfile{RecipientID: recipientID}
	err := s.pool.QueryRow(ctx, `
		SELECT email, phone_number, email_verified, allow_notify
		FROM recipient_profiles
		WHERE recipient_id = $1`,
		recipientID,
	).Scan(&p.Email, &p.PhoneNumber, &p.EmailVerified, &p.AllowNotify)
	if err != nil {
		return nil, mapError("get profile "+recipientID.String(), err)
	}
	return &p, nil
}
