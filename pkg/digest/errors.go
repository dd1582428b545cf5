package digest

import "errors"

var (
	// ErrMissingDependency is returned when a required collaborator is nil.
	ErrMissingDependency = errors.New("digest: missing dependency")

	// ErrSchedulerStarted is returned by Start on a running scheduler.
	ErrSchedulerStarted = errors.New("digest: scheduler already started")

	// ErrSchedulerNotStarted is returned by Stop on an idle scheduler.
	ErrSchedulerNotStarted = errors.New("digest: scheduler not started")

	// ErrLockHeld is returned by a Locker when another process holds the key.
	ErrLockHeld = errors.New("digest: flush lock held elsewhere")

	// ErrNoAddress is returned when the recipient cannot be reached on the
	// subscription's preferred channel.
	ErrNoAddress = errors.New("digest: no contact address for preferred channel")
)
