package channel_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mrz1836/postmark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// MockPostmark is a mock implementation of channel.PostmarkAPI
type MockPostmark struct {
	mock.Mock
}

func (m *MockPostmark) SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(postmark.EmailResponse), args.Error(1)
}

func validEmailConfig() channel.EmailConfig {
	return channel.EmailConfig{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "noreply@example.com",
		SupportEmail:         "support@example.com",
		HTMLBody:             true,
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	var got []string
	email := channel.SenderFunc(notification.ChannelEmail, func(_ context.Context, address, subject, body string) error {
		got = append(got, address, subject, body)
		return nil
	})
	r := channel.NewRegistry(email, nil)

	s, err := r.Get(notification.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, notification.ChannelEmail, s.Channel())
	assert.Equal(t, []notification.Channel{notification.ChannelEmail}, r.Channels())

	require.NoError(t, r.Send(context.Background(), notification.ChannelEmail, "a@example.com", "s", "b"))
	assert.Equal(t, []string{"a@example.com", "s", "b"}, got)

	_, err = r.Get(notification.ChannelSMS)
	assert.ErrorIs(t, err, channel.ErrNoSender)

	err = r.Send(context.Background(), notification.ChannelSMS, "+1", "s", "b")
	assert.ErrorIs(t, err, notification.ErrDelivery)
	assert.ErrorIs(t, err, channel.ErrNoSender)
	assert.True(t, channel.IsPermanent(err))
}

func TestDeliveryError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := channel.NewDeliveryError(notification.ChannelSMS, false, cause)
	assert.ErrorIs(t, err, notification.ErrDelivery)
	assert.ErrorIs(t, err, cause)
	assert.False(t, channel.IsPermanent(err))
	assert.Equal(t, "SMS delivery failed: connection reset", err.Error())
	assert.False(t, channel.IsPermanent(cause))
}

func TestNewEmailSender_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := map[string]func(*channel.EmailConfig){
		"missing server token":  func(c *channel.EmailConfig) { c.PostmarkServerToken = "" },
		"missing account token": func(c *channel.EmailConfig) { c.PostmarkAccountToken = "" },
		"invalid sender":        func(c *channel.EmailConfig) { c.SenderEmail = "nope" },
		"invalid support":       func(c *channel.EmailConfig) { c.SupportEmail = "nope" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := validEmailConfig()
			mutate(&cfg)
			s, err := channel.NewEmailSender(cfg)
			assert.ErrorIs(t, err, channel.ErrInvalidConfig)
			assert.Nil(t, s)
		})
	}
}

func TestEmailSender_Send(t *testing.T) {
	t.Parallel()

	t.Run("html body", func(t *testing.T) {
		t.Parallel()
		api := new(MockPostmark)
		defer api.AssertExpectations(t)
		api.On("SendEmail", mock.Anything, mock.MatchedBy(func(e postmark.Email) bool {
			return e.To == "jane@example.com" &&
				e.From == "noreply@example.com" &&
				e.ReplyTo == "support@example.com" &&
				e.Subject == "Stock" &&
				e.HTMLBody == "<p>low</p>" &&
				e.TextBody == ""
		})).Return(postmark.EmailResponse{}, nil)

		s, err := channel.NewEmailSender(validEmailConfig(), channel.WithPostmarkAPI(api))
		require.NoError(t, err)
		assert.Equal(t, notification.ChannelEmail, s.Channel())
		require.NoError(t, s.Send(context.Background(), "jane@example.com", "Stock", "<p>low</p>"))
	})

	t.Run("text body", func(t *testing.T) {
		t.Parallel()
		api := new(MockPostmark)
		defer api.AssertExpectations(t)
		api.On("SendEmail", mock.Anything, mock.MatchedBy(func(e postmark.Email) bool {
			return e.TextBody == "plain" && e.HTMLBody == ""
		})).Return(postmark.EmailResponse{}, nil)

		cfg := validEmailConfig()
		cfg.HTMLBody = false
		s, err := channel.NewEmailSender(cfg, channel.WithPostmarkAPI(api))
		require.NoError(t, err)
		require.NoError(t, s.Send(context.Background(), "jane@example.com", "s", "plain"))
	})

	t.Run("transport error", func(t *testing.T) {
		t.Parallel()
		api := new(MockPostmark)
		api.On("SendEmail", mock.Anything, mock.Anything).Return(postmark.EmailResponse{}, errors.New("timeout"))

		s, err := channel.NewEmailSender(validEmailConfig(), channel.WithPostmarkAPI(api))
		require.NoError(t, err)
		err = s.Send(context.Background(), "jane@example.com", "s", "b")
		assert.ErrorIs(t, err, notification.ErrDelivery)
		assert.False(t, channel.IsPermanent(err))
	})

	t.Run("api error code", func(t *testing.T) {
		t.Parallel()
		api := new(MockPostmark)
		api.On("SendEmail", mock.Anything, mock.Anything).
			Return(postmark.EmailResponse{ErrorCode: 406, Message: "inactive recipient"}, nil)

		s, err := channel.NewEmailSender(validEmailConfig(), channel.WithPostmarkAPI(api))
		require.NoError(t, err)
		err = s.Send(context.Background(), "jane@example.com", "s", "b")
		assert.ErrorIs(t, err, notification.ErrDelivery)
		assert.True(t, channel.IsPermanent(err))
		assert.Contains(t, err.Error(), "inactive recipient")
	})

	t.Run("invalid address", func(t *testing.T) {
		t.Parallel()
		api := new(MockPostmark)
		s, err := channel.NewEmailSender(validEmailConfig(), channel.WithPostmarkAPI(api))
		require.NoError(t, err)
		err = s.Send(context.Background(), "not-an-email", "s", "b")
		assert.ErrorIs(t, err, channel.ErrInvalidAddress)
		api.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
	})
}

func TestFileSender(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "outbox")
	s := channel.NewFileSender(notification.ChannelSMS, dir)
	assert.Equal(t, notification.ChannelSMS, s.Channel())

	require.NoError(t, s.Send(context.Background(), "+15550100", "Low stock: 3 items!", "body text"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var txt, meta string
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".txt"):
			txt = filepath.Join(dir, e.Name())
		case strings.HasSuffix(e.Name(), ".json"):
			meta = filepath.Join(dir, e.Name())
		}
	}
	require.NotEmpty(t, txt)
	require.NotEmpty(t, meta)
	assert.Contains(t, filepath.Base(txt), "_sms_low_stock_3_items")

	body, err := os.ReadFile(txt)
	require.NoError(t, err)
	assert.Equal(t, "body text", string(body))

	raw, err := os.ReadFile(meta)
	require.NoError(t, err)
	var m map[string]string
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "+15550100", m["send_to"])
	assert.Equal(t, "SMS", m["channel"])
}
