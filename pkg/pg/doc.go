// Package pg bootstraps the PostgreSQL layer on top of pgx/v5.
//
// Connect opens a *pgxpool.Pool from an env-populated Config and retries
// until the database answers a ping. Migrate applies goose migrations from an
// fs.FS, typically one embedded next to the queries that need the schema.
// Healthcheck returns a readiness probe, and WithTx runs a function inside a
// transaction.
//
// Error helpers such as IsDuplicateKeyError classify *pgconn.PgError values
// so callers can map them onto domain errors.
//
// Usage:
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, postgres.Migrations(), log); err != nil {
//		return err
//	}
package pg
