package notification

import (
	"strings"

	"github.com/google/uuid"
)

// RecipientProfile holds contact details and notification preferences.
type RecipientProfile struct {
	RecipientID   uuid.UUID `json:"recipient_id"`
	PhoneNumber   string    `json:"phone_number,omitempty"`
	Email         string    `json:"email,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	AllowNotify   bool      `json:"allow_notify"`
}

// NewRecipientProfile returns a normalized profile with notifications allowed.
func NewRecipientProfile(recipientID uuid.UUID, email, phone string, emailVerified bool) *RecipientProfile {
	p := &RecipientProfile{
		RecipientID:   recipientID,
		Email:         email,
		PhoneNumber:   phone,
		EmailVerified: emailVerified,
		AllowNotify:   true,
	}
	p.Normalize()
	return p
}

// Normalize trims contact fields and turns notifications off when no
// verified email exists.
func (p *RecipientProfile) Normalize() {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.PhoneNumber = strings.TrimSpace(p.PhoneNumber)
	if p.Email == "" {
		p.EmailVerified = false
	}
	if !p.HasVerifiedEmail() {
		p.AllowNotify = false
	}
}

// HasVerifiedEmail reports whether the profile holds a verified email address.
func (p *RecipientProfile) HasVerifiedEmail() bool {
	return p.Email != "" && p.EmailVerified
}

// Address returns the verified contact address for the channel, if any.
func (p *RecipientProfile) Address(ch Channel) (string, bool) {
	if p == nil {
		return "", false
	}
	switch ch {
	case ChannelEmail:
		if p.HasVerifiedEmail() {
			return p.Email, true
		}
	case ChannelSMS:
		if p.PhoneNumber != "" {
			return p.PhoneNumber, true
		}
	}
	return "", false
}
