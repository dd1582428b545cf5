// Package postgres implements the stores of the dispatch pipeline on
// PostgreSQL through pgx/v5.
//
// Claims use FOR UPDATE SKIP LOCKED plus a lease column, so several
// processes can poll the same queue and an item whose worker died becomes
// claimable again once its lease expires. Postpone deletes the work item and
// inserts the digest entry in one transaction. Drain takes a
// transaction-scoped advisory lock on the bucket key and deletes the entries
// with DELETE ... RETURNING, so concurrent drains never see the same entry.
//
// Unique and foreign key violations are reported as
// notification.ErrConstraintViolation and notification.ErrNotFound.
//
// The schema ships as embedded goose migrations:
//
//	if err := pg.Migrate(ctx, pool, cfg, postgres.Migrations(), log); err != nil {
//		return err
//	}
//	store := postgres.New(pool, postgres.WithLogger(log))
package postgres
