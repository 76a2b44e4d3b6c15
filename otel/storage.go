package otel

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tidemark/eventsource"
)

var _ eventsource.Storage = (*storageTelemetry)(nil)

type storageTelemetry struct {
	next eventsource.Storage
}

// WithStorageTelemetry wraps a Storage with tracing and metrics.
func WithStorageTelemetry(next eventsource.Storage) eventsource.Storage {
	return &storageTelemetry{next: next}
}

func (t *storageTelemetry) CommitEvents(ctx context.Context, events eventsource.Stream) error {
	ctx, span := tracer.Start(ctx, "Storage.CommitEvents",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrOperation.String("commit"),
			AttrEventCount.Int(events.Len()),
		),
	)
	defer span.End()

	start := time.Now()
	err := t.next.CommitEvents(ctx, events)
	StorageDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(AttrOperation.String("commit")),
	)

	if err != nil {
		StorageErrors.Add(ctx, 1)
		var conflict *eventsource.VersionConflictError
		if errors.As(err, &conflict) {
			ConcurrencyConflicts.Add(ctx, 1)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	EventsCommitted.Add(ctx, int64(events.Len()))
	return nil
}

func (t *storageTelemetry) GetEvents(ctx context.Context, eventTypes ...string) ([]eventsource.Event, error) {
	return t.load(ctx, "Storage.GetEvents", nil, func(ctx context.Context) ([]eventsource.Event, error) {
		return t.next.GetEvents(ctx, eventTypes...)
	})
}

func (t *storageTelemetry) GetAggregateEvents(ctx context.Context, aggregateID string, filter *eventsource.Filter) ([]eventsource.Event, error) {
	attrs := []trace.SpanStartOption{
		trace.WithAttributes(AttrAggregateID.String(aggregateID)),
	}
	return t.load(ctx, "Storage.GetAggregateEvents", attrs, func(ctx context.Context) ([]eventsource.Event, error) {
		return t.next.GetAggregateEvents(ctx, aggregateID, filter)
	})
}

func (t *storageTelemetry) GetSagaEvents(ctx context.Context, sagaID string, filter eventsource.Filter) ([]eventsource.Event, error) {
	attrs := []trace.SpanStartOption{
		trace.WithAttributes(AttrSagaID.String(sagaID)),
	}
	return t.load(ctx, "Storage.GetSagaEvents", attrs, func(ctx context.Context) ([]eventsource.Event, error) {
		return t.next.GetSagaEvents(ctx, sagaID, filter)
	})
}

func (t *storageTelemetry) NewID(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "Storage.NewID",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrOperation.String("new_id")),
	)
	defer span.End()

	id, err := t.next.NewID(ctx)
	if err != nil {
		StorageErrors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return id, err
}

func (t *storageTelemetry) load(
	ctx context.Context,
	spanName string,
	extra []trace.SpanStartOption,
	fn func(ctx context.Context) ([]eventsource.Event, error),
) ([]eventsource.Event, error) {
	opts := append([]trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrOperation.String("load")),
	}, extra...)

	ctx, span := tracer.Start(ctx, spanName, opts...)
	defer span.End()

	start := time.Now()
	events, err := fn(ctx)
	StorageDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(AttrOperation.String("load")),
	)

	if err != nil {
		StorageErrors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(AttrEventCount.Int(len(events)))
	EventsLoaded.Add(ctx, int64(len(events)))
	return events, nil
}
