package postgres

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/queue"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the schema migrations for pg.Migrate.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

var (
	_ notification.ProfileStore      = (*Store)(nil)
	_ notification.SubscriptionStore = (*Store)(nil)
	_ notification.NotificationStore = (*Store)(nil)
	_ queue.Repository               = (*Store)(nil)
	_ digest.BucketStore             = (*Store)(nil)
)

// Store implements every repository of the dispatch pipeline on PostgreSQL.
// Work items are claimed with FOR UPDATE SKIP LOCKED and a lease; digest
// buckets are drained with DELETE ... RETURNING under a transaction-scoped
// advisory lock.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for leases and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps an open pool. Run pg.Migrate with Migrations() first.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("store.postgres"))
	return s
}

// mapError translates constraint violations into domain errors.
func mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case pg.IsNotFoundError(err):
		return fmt.Errorf("%s: %w", op, notification.ErrNotFound)
	case pg.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w: %v", op, notification.ErrConstraintViolation, err)
	case pg.IsForeignKeyViolationError(err):
		return fmt.Errorf("%s: %w: %v", op, notification.ErrNotFound, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
