package channel

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

var (
	ErrInvalidConfig  = errors.New("channel: invalid config")
	ErrNoSender       = errors.New("channel: no sender registered")
	ErrInvalidAddress = errors.New("channel: invalid recipient address")
	ErrCircuitOpen    = errors.New("channel: circuit breaker is open")
)

// DeliveryError reports a transport failure. It matches notification.ErrDelivery.
type DeliveryError struct {
	Channel notification.Channel
	// Permanent is set when retrying cannot succeed, e.g. the provider
	// rejected the address.
	Permanent bool
	Err       error
}

// NewDeliveryError wraps err for the channel.
func NewDeliveryError(ch notification.Channel, permanent bool, err error) *DeliveryError {
	return &DeliveryError{Channel: ch, Permanent: permanent, Err: err}
}

func (e *DeliveryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s delivery failed", e.Channel)
	}
	return fmt.Sprintf("%s delivery failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	if e.Err == nil {
		return []error{notification.ErrDelivery}
	}
	return []error{notification.ErrDelivery, e.Err}
}

// IsPermanent reports whether err is a DeliveryError marked permanent.
func IsPermanent(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Permanent
}
