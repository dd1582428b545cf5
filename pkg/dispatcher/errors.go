package dispatcher

import "errors"

var (
	// ErrInvalidTransition is returned when a work item lifecycle step is out of order.
	ErrInvalidTransition = errors.New("dispatcher: invalid lifecycle transition")

	// ErrMissingDependency is returned when a required collaborator is nil.
	ErrMissingDependency = errors.New("dispatcher: missing dependency")

	// ErrPoolClosed is returned when work is submitted to a stopped channel pool.
	ErrPoolClosed = errors.New("dispatcher: channel pool closed")

	// ErrPoolFull is returned when a channel pool has no free slot.
	ErrPoolFull = errors.New("dispatcher: channel pool full")
)
