package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// SMSSender posts text messages to an HTTP SMS gateway.
type SMSSender struct {
	cfg     SMSConfig
	client  *http.Client
	backoff Backoff
	breaker *CircuitBreaker
}

// SMSOption configures an SMSSender.
type SMSOption func(*SMSSender)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) SMSOption {
	return func(s *SMSSender) {
		if c != nil {
			s.client = c
		}
	}
}

// WithBackoff overrides the retry backoff.
func WithBackoff(b Backoff) SMSOption {
	return func(s *SMSSender) {
		if b != nil {
			s.backoff = b
		}
	}
}

// WithCircuitBreaker overrides the circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) SMSOption {
	return func(s *SMSSender) {
		if cb != nil {
			s.breaker = cb
		}
	}
}

// NewSMSSender builds a gateway sender from the configuration.
func NewSMSSender(cfg SMSConfig, opts ...SMSOption) (*SMSSender, error) {
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("%w: GatewayURL is required", ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	s := &SMSSender{
		cfg:     cfg,
		client:  &http.Client{},
		backoff: DefaultBackoff(),
		breaker: NewCircuitBreaker(cfg.FailureThreshold, 1, cfg.RecoveryTimeout),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SMSSender) Channel() notification.Channel { return notification.ChannelSMS }

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

// Send delivers the body as one SMS. The subject is used only when the body is
// empty. Gateway 4xx responses are permanent; 5xx and transport errors are
// retried up to MaxRetries times.
func (s *SMSSender) Send(ctx context.Context, address, subject, body string) error {
	if address == "" {
		return NewDeliveryError(notification.ChannelSMS, true, ErrInvalidAddress)
	}
	text := body
	if text == "" {
		text = subject
	}
	payload, err := json.Marshal(smsRequest{To: address, From: s.cfg.From, Text: text})
	if err != nil {
		return NewDeliveryError(notification.ChannelSMS, true, err)
	}

	if !s.breaker.Allow() {
		return NewDeliveryError(notification.ChannelSMS, false, ErrCircuitOpen)
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return NewDeliveryError(notification.ChannelSMS, false, errors.Join(ctx.Err(), lastErr))
			case <-time.After(s.backoff.NextInterval(attempt)):
			}
		}

		status, err := s.post(ctx, payload)
		if err == nil {
			s.breaker.RecordSuccess()
			return nil
		}
		s.breaker.RecordFailure()
		lastErr = err

		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			return NewDeliveryError(notification.ChannelSMS, true, err)
		}
	}
	return NewDeliveryError(notification.ChannelSMS, false,
		fmt.Errorf("after %d attempts: %w", s.cfg.MaxRetries+1, lastErr))
}

func (s *SMSSender) post(ctx context.Context, payload []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return resp.StatusCode, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
}
