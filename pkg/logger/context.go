package logger

import (
	"context"
	"log/slog"
)

type workItemKey struct{}

// WithWorkItem stores the work item identifier in ctx so every record logged
// with that context carries a "work_item" attribute.
func WithWorkItem(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, workItemKey{}, id)
}

// WorkItemFromContext returns the work item identifier stored by WithWorkItem.
func WorkItemFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(workItemKey{}).(string)
	return id, ok && id != ""
}

func workItemExtractor(ctx context.Context) (slog.Attr, bool) {
	if id, ok := WorkItemFromContext(ctx); ok {
		return slog.String("work_item", id), true
	}
	return slog.Attr{}, false
}
