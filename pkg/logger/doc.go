// Package logger provides a context-aware wrapper around Go's slog package
// adding functional options for configuration, helper attribute constructors,
// and transparent injection of values stored in context.Context.
//
// New builds a *slog.Logger whose handler is wrapped in LogHandlerDecorator.
// The decorator runs registered ContextExtractor callbacks on every record, so
// request- or work-item-scoped values (see WithWorkItem) show up in every log
// line without threading them through call sites.
//
// Helper constructors such as Error, NotificationID, Channel and Decision keep
// attribute naming consistent across the dispatch pipeline.
//
// # Usage
//
//	log := logger.New(
//		logger.WithEnvironment(logger.EnvProduction, "notifyd"),
//		logger.WithLevel(logger.ParseLevel("debug")),
//	)
//	ctx = logger.WithWorkItem(ctx, "5f0c…:EMAIL")
//	log.InfoContext(ctx, "message sent",
//		logger.Channel("EMAIL"),
//		logger.Decision("ALLOW"),
//	)
package logger
