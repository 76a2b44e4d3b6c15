// Package logging provides slog middleware for event handlers and the
// Storage collaborator.
package logging

import (
	"context"
	"log/slog"

	"github.com/tidemark/eventsource"
)

// WithEventLogging wraps an event handler with debug/error logging.
func WithEventLogging(logger *slog.Logger, next eventsource.EventHandler) eventsource.EventHandler {
	return eventsource.HandlerFunc(func(ctx context.Context, event eventsource.Event) error {
		l := logger.With(
			"type", event.Type,
			"aggregateId", event.AggregateID,
			"aggregateVersion", event.AggregateVersion,
			"sagaId", event.SagaID,
		)

		l.DebugContext(ctx, "event processing started")

		err := next.Handle(ctx, event)

		if err != nil {
			l.ErrorContext(ctx, "error processing event", "error", err)
		} else {
			l.DebugContext(ctx, "event processed successfully")
		}

		return err
	})
}
