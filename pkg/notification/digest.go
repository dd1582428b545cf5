package notification

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// CountPlaceholder is substituted with the number of consolidated messages.
const CountPlaceholder = "${count}"

// DigestConfiguration describes how messages sharing a tag are consolidated.
type DigestConfiguration struct {
	ID      uuid.UUID `json:"id"`
	Tag     string    `json:"tag"`
	Message string    `json:"message"`
}

// NewDigestConfiguration validates and builds a configuration.
func NewDigestConfiguration(tag, message string) (*DigestConfiguration, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, fmt.Errorf("%w: digest tag is required", ErrValidation)
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: digest message is required", ErrValidation)
	}
	return &DigestConfiguration{ID: uuid.New(), Tag: tag, Message: message}, nil
}

// Compose renders the configuration template for count consolidated messages.
func (c *DigestConfiguration) Compose(count int) string {
	return strings.ReplaceAll(c.Message, CountPlaceholder, strconv.Itoa(count))
}

// DigestSubscription binds a recipient to a digest configuration, a preferred
// channel and a cron schedule.
type DigestSubscription struct {
	ID               uuid.UUID           `json:"id"`
	RecipientID      uuid.UUID           `json:"recipient_id"`
	Configuration    DigestConfiguration `json:"configuration"`
	PreferredChannel Channel             `json:"preferred_channel"`
	CronExpression   string              `json:"cron_expression"`
}

// NewDigestSubscription validates the channel and cron expression.
// An unparsable expression yields ErrValidation and no subscription.
func NewDigestSubscription(recipientID uuid.UUID, cfg DigestConfiguration, ch Channel, expr string) (*DigestSubscription, error) {
	if recipientID == uuid.Nil {
		return nil, fmt.Errorf("%w: recipient id is required", ErrValidation)
	}
	if !ch.Valid() {
		return nil, fmt.Errorf("%w: unknown channel %q", ErrValidation, ch)
	}
	if _, err := ParseCron(expr); err != nil {
		return nil, err
	}
	return &DigestSubscription{
		ID:               uuid.New(),
		RecipientID:      recipientID,
		Configuration:    cfg,
		PreferredChannel: ch,
		CronExpression:   strings.TrimSpace(expr),
	}, nil
}

// Schedule returns the parsed cron schedule.
func (s *DigestSubscription) Schedule() (cron.Schedule, error) {
	return ParseCron(s.CronExpression)
}

var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron parses a 6-field cron expression (seconds first) or a descriptor
// such as "@hourly" or "@every 5m".
func ParseCron(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: cron expression is required", ErrValidation)
	}
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid cron expression %q: %v", ErrValidation, expr, err)
	}
	return s, nil
}
