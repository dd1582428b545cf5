package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

// Dispatcher accepts notifications and drives them through the work queue.
type Dispatcher struct {
	store    Store
	worker   *queue.Worker
	pipeline *Pipeline
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New wires the pipeline and the queue worker.
func New(store Store, senders *channel.Registry, toggle ConsolidationToggle, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store", ErrMissingDependency)
	}
	if senders == nil {
		return nil, fmt.Errorf("%w: sender registry", ErrMissingDependency)
	}
	if toggle == nil {
		return nil, fmt.Errorf("%w: consolidation toggle", ErrMissingDependency)
	}

	o := &options{
		cfg:    DefaultConfig(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	pipeline := newPipeline(store, senders, toggle, o)

	workerOpts := append([]queue.WorkerOption{queue.WithWorkerLogger(o.logger)}, o.workerOpts...)
	worker, err := queue.NewWorker(store, pipeline, workerOpts...)
	if err != nil {
		pipeline.close()
		return nil, err
	}

	if wait := o.cfg.sendBudget(); wait >= worker.LockTimeout() {
		// Re-claims of a still queued item are skipped, not resent.
		o.logger.Warn("channel pool backlog can outlast the work item lease",
			logger.Component("dispatcher"),
			slog.Duration("max_send_wait", wait),
			slog.Duration("lock_timeout", worker.LockTimeout()))
	}

	return &Dispatcher{
		store:    store,
		worker:   worker,
		pipeline: pipeline,
		logger:   o.logger.With(logger.Component("dispatcher")),
		metrics:  o.metrics,
		now:      o.now,
	}, nil
}

// Submit validates n, persists it with one work item per message and wakes
// the poll loop. A zero ID is replaced with a fresh one; CreatedAt is always
// stamped here.
func (d *Dispatcher) Submit(ctx context.Context, n *notification.Notification) error {
	if n == nil {
		return errors.Join(notification.ErrValidation, errors.New("notification is nil"))
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = d.now().UTC()
	for i := range n.Messages {
		n.Messages[i].Sent = false
	}

	if err := n.Validate(); err != nil {
		return err
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("submit notification %s: %w", n.ID, err)
	}

	d.metrics.Submitted()
	d.worker.Notify()

	d.logger.InfoContext(ctx, "notification submitted",
		logger.NotificationID(n.ID),
		logger.RecipientID(n.RecipientID),
		slog.Bool("important", n.Important),
		logger.Count(len(n.Messages)))
	return nil
}

// Notify wakes the poll loop without submitting anything.
func (d *Dispatcher) Notify() {
	d.worker.Notify()
}

// Start launches the poll loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	return d.worker.Start(ctx)
}

// Stop halts the poll loop, then waits for in-flight sends.
func (d *Dispatcher) Stop() error {
	err := d.worker.Stop()
	d.pipeline.close()
	return err
}

// Run starts the dispatcher and returns a function suitable for errgroup.
func (d *Dispatcher) Run(ctx context.Context) func() error {
	return func() error {
		if err := d.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return d.Stop()
	}
}
