package channel

import (
	"context"
	"fmt"
	"regexp"

	"github.com/mrz1836/postmark"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+$`)

// PostmarkAPI is the subset of *postmark.Client used by EmailSender.
type PostmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// EmailSender delivers email through Postmark's transactional API.
type EmailSender struct {
	api PostmarkAPI
	cfg EmailConfig
}

// EmailOption configures an EmailSender.
type EmailOption func(*EmailSender)

// WithPostmarkAPI replaces the Postmark client, e.g. with a test double.
func WithPostmarkAPI(api PostmarkAPI) EmailOption {
	return func(s *EmailSender) {
		if api != nil {
			s.api = api
		}
	}
}

// NewEmailSender validates the configuration and builds a Postmark sender.
func NewEmailSender(cfg EmailConfig, opts ...EmailOption) (*EmailSender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}
	if !emailRegex.MatchString(cfg.SenderEmail) {
		return nil, fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	if cfg.SupportEmail != "" && !emailRegex.MatchString(cfg.SupportEmail) {
		return nil, fmt.Errorf("%w: SupportEmail must be a valid email address", ErrInvalidConfig)
	}

	s := &EmailSender{
		api: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		cfg: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *EmailSender) Channel() notification.Channel { return notification.ChannelEmail }

// Send delivers one email. Postmark API error codes are permanent failures;
// transport errors are not.
func (s *EmailSender) Send(ctx context.Context, address, subject, body string) error {
	if !emailRegex.MatchString(address) {
		return NewDeliveryError(notification.ChannelEmail, true, fmt.Errorf("%w: %q", ErrInvalidAddress, address))
	}

	msg := postmark.Email{
		From:       s.cfg.SenderEmail,
		ReplyTo:    s.cfg.SupportEmail,
		To:         address,
		Subject:    subject,
		TrackOpens: s.cfg.HTMLBody,
	}
	if s.cfg.HTMLBody {
		msg.HTMLBody = body
		msg.TrackLinks = "HtmlOnly"
	} else {
		msg.TextBody = body
	}

	resp, err := s.api.SendEmail(ctx, msg)
	if err != nil {
		return NewDeliveryError(notification.ChannelEmail, false, err)
	}
	if resp.ErrorCode > 0 {
		return NewDeliveryError(notification.ChannelEmail, true,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
