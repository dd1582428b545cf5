// Package httpserver runs the operational HTTP endpoint of notifyd.
//
// Server wraps http.Server: Run binds the listener, serves until the context
// is cancelled and then shuts down within the configured timeout, so it fits
// directly into an errgroup. OpsRouter builds a chi router exposing liveness,
// readiness and Prometheus metrics.
//
// Usage:
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	router := httpserver.OpsRouter(log, registry,
//		httpserver.Check{Name: "postgres", Probe: pg.Healthcheck(pool)},
//	)
//	g.Go(func() error { return srv.Run(ctx, router) })
package httpserver
