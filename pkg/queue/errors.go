package queue

import "errors"

var (
	// ErrRepositoryNil is returned when a nil repository is provided
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrHandlerNil is returned when a nil handler is provided
	ErrHandlerNil = errors.New("handler cannot be nil")

	// ErrNoWorkItem is returned by ClaimOldest when the queue holds no available item
	ErrNoWorkItem = errors.New("no work item to claim")

	// ErrWorkerStarted is returned when Start is called on a running worker
	ErrWorkerStarted = errors.New("worker already started")

	// ErrWorkerNotStarted is returned when Stop is called on an idle worker
	ErrWorkerNotStarted = errors.New("worker not started")
)
