package notification

import "errors"

var (
	// ErrNotFound is returned when a recipient profile, notification, digest
	// configuration or subscription does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when input is malformed, e.g. an unparsable cron expression.
	ErrValidation = errors.New("validation failed")

	// ErrDelivery is returned when a channel transport fails to deliver a message.
	ErrDelivery = errors.New("delivery failed")

	// ErrConstraintViolation is returned when a uniqueness rule is broken:
	// duplicate channel in one notification, duplicate digest tag or email.
	ErrConstraintViolation = errors.New("constraint violation")
)
