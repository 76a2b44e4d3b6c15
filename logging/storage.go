package logging

import (
	"context"
	"log/slog"

	"github.com/tidemark/eventsource"
)

var _ eventsource.Storage = (*storageLogger)(nil)

type storageLogger struct {
	next eventsource.Storage
	log  *slog.Logger
}

// WithStorageLogging wraps a Storage with debug/error logging.
func WithStorageLogging(logger *slog.Logger, next eventsource.Storage) eventsource.Storage {
	return &storageLogger{next: next, log: logger}
}

func (s *storageLogger) CommitEvents(ctx context.Context, events eventsource.Stream) error {
	err := s.next.CommitEvents(ctx, events)
	if err != nil {
		s.log.ErrorContext(ctx, "commit events", "stream", events.String(), "error", err)
		return err
	}
	s.log.DebugContext(ctx, "committed events", "stream", events.String())
	return nil
}

func (s *storageLogger) GetEvents(ctx context.Context, eventTypes ...string) ([]eventsource.Event, error) {
	events, err := s.next.GetEvents(ctx, eventTypes...)
	if err != nil {
		s.log.ErrorContext(ctx, "get events", "types", eventTypes, "error", err)
		return nil, err
	}
	s.log.DebugContext(ctx, "loaded events", "types", eventTypes, "count", len(events))
	return events, nil
}

func (s *storageLogger) GetAggregateEvents(ctx context.Context, aggregateID string, filter *eventsource.Filter) ([]eventsource.Event, error) {
	events, err := s.next.GetAggregateEvents(ctx, aggregateID, filter)
	if err != nil {
		s.log.ErrorContext(ctx, "get aggregate events", "aggregateId", aggregateID, "error", err)
		return nil, err
	}
	s.log.DebugContext(ctx, "loaded aggregate events", "aggregateId", aggregateID, "count", len(events))
	return events, nil
}

func (s *storageLogger) GetSagaEvents(ctx context.Context, sagaID string, filter eventsource.Filter) ([]eventsource.Event, error) {
	events, err := s.next.GetSagaEvents(ctx, sagaID, filter)
	if err != nil {
		s.log.ErrorContext(ctx, "get saga events", "sagaId", sagaID, "error", err)
		return nil, err
	}
	s.log.DebugContext(ctx, "loaded saga events", "sagaId", sagaID, "count", len(events))
	return events, nil
}

func (s *storageLogger) NewID(ctx context.Context) (string, error) {
	id, err := s.next.NewID(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "new id", "error", err)
	}
	return id, err
}
