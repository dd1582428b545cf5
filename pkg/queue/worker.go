package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Worker is the single poll loop of the work queue. It sleeps until either
// the poll interval elapses or Notify is called, then claims and handles
// items until the queue is empty.
type Worker struct {
	repo     Repository
	handler  Handler
	workerID uuid.UUID
	wake     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex

	pollInterval time.Duration
	lockTimeout  time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
}

// NewWorker creates a poll loop that hands claimed items to handler.
func NewWorker(repo Repository, handler Handler, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	if handler == nil {
		return nil, ErrHandlerNil
	}

	options := &workerOptions{
		pollInterval: 5 * time.Second,
		lockTimeout:  5 * time.Minute,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		repo:         repo,
		handler:      handler,
		workerID:     uuid.New(),
		wake:         make(chan struct{}, 1),
		pollInterval: options.pollInterval,
		lockTimeout:  options.lockTimeout,
		logger:       options.logger.With(logger.Component("queue.worker")),
	}, nil
}

// ID returns the identifier the worker claims items under.
func (w *Worker) ID() uuid.UUID {
	return w.workerID
}

// LockTimeout returns the lease duration of claimed items.
func (w *Worker) LockTimeout() time.Duration {
	return w.lockTimeout
}

// Notify wakes the poll loop. It never blocks; wake-ups coalesce.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Start launches the poll loop in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrWorkerStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(loopCtx)
	}()

	w.logger.InfoContext(ctx, "worker started",
		logger.WorkerID(w.workerID),
		slog.Duration("poll_interval", w.pollInterval))

	return nil
}

// Stop cancels the poll loop and waits for the item in flight to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return ErrWorkerNotStarted
	}

	cancel()
	w.wg.Wait()

	w.logger.Info("worker stopped", logger.WorkerID(w.workerID))
	return nil
}

// Run starts the worker and returns a function suitable for errgroup.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Pick up anything left over from a previous run.
	w.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.wake:
		}
		w.drain(ctx)
	}
}

// drain claims and handles items until the queue is empty or ctx is done.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		item, err := w.repo.ClaimOldest(ctx, w.workerID, w.lockTimeout)
		if err != nil {
			if !errors.Is(err, ErrNoWorkItem) && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "failed to claim work item",
					logger.WorkerID(w.workerID),
					logger.Error(err))
			}
			return
		}
		if item == nil {
			return
		}
		w.process(ctx, item)
	}
}

// process runs the handler for one item. Handler errors and panics are
// fatal to that item only.
func (w *Worker) process(ctx context.Context, item *WorkItem) {
	// In-flight items finish on shutdown; the lease bounds their run time.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.lockTimeout)
	defer cancel()
	hctx = logger.WithWorkItem(hctx, item.Key.String())

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.logger.ErrorContext(hctx, "work item handler panicked",
				logger.WorkerID(w.workerID),
				logger.NotificationID(item.NotificationID),
				logger.Channel(item.Channel),
				slog.Any("panic", r))
			// A panicking item would panic again on replay.
			if err := w.repo.Retire(hctx, item.Key); err != nil {
				w.logger.ErrorContext(hctx, "failed to retire work item after panic",
					logger.Error(err))
			}
		}
	}()

	if err := w.handler.Handle(hctx, item); err != nil {
		w.logger.ErrorContext(hctx, "work item handler failed",
			logger.WorkerID(w.workerID),
			logger.NotificationID(item.NotificationID),
			logger.Channel(item.Channel),
			logger.Duration(time.Since(start)),
			logger.Error(fmt.Errorf("handle %s: %w", item.Key, err)))
		return
	}

	w.logger.DebugContext(hctx, "work item handled",
		logger.WorkerID(w.workerID),
		logger.Duration(time.Since(start)))
}
