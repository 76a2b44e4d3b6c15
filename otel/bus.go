package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tidemark/eventsource"
)

var _ eventsource.MessageBus = (*busTelemetry)(nil)

type busTelemetry struct {
	next eventsource.MessageBus
}

// WithBusTelemetry wraps a MessageBus with tracing and metrics. Handlers
// registered through the wrapped bus are instrumented as well.
func WithBusTelemetry(next eventsource.MessageBus) eventsource.MessageBus {
	return &busTelemetry{next: next}
}

func (t *busTelemetry) Publish(ctx context.Context, event eventsource.Event) error {
	ctx, span := tracer.Start(ctx, "MessageBus.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			AttrEventType.String(event.Type),
			AttrAggregateID.String(event.AggregateID),
		),
	)
	defer span.End()

	err := t.next.Publish(ctx, event)
	if err != nil {
		BusErrors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	EventsPublished.Add(ctx, 1,
		metric.WithAttributes(AttrEventType.String(event.Type)),
	)
	return nil
}

func (t *busTelemetry) Subscribe(messageType string, handler eventsource.EventHandler, opts ...eventsource.SubscribeOption) (eventsource.Subscription, error) {
	instrumented := eventsource.HandlerFunc(func(ctx context.Context, ev eventsource.Event) error {
		ctx, span := tracer.Start(ctx, "MessageBus.Handle",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				AttrMessageType.String(messageType),
				AttrEventType.String(ev.Type),
			),
		)
		defer span.End()

		start := time.Now()
		err := handler.Handle(ctx, ev)
		HandleDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(AttrMessageType.String(messageType)),
		)

		if err != nil {
			BusErrors.Add(ctx, 1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		EventsHandled.Add(ctx, 1,
			metric.WithAttributes(AttrMessageType.String(messageType)),
		)
		return nil
	})

	sub, err := t.next.Subscribe(messageType, instrumented, opts...)
	if err != nil {
		return nil, err
	}

	Subscribers.Add(context.Background(), 1)
	return &countedSubscription{sub: sub}, nil
}

func (t *busTelemetry) SupportsQueues() bool { return t.next.SupportsQueues() }

func (t *busTelemetry) Close() error { return t.next.Close() }

type countedSubscription struct {
	sub eventsource.Subscription
}

func (s *countedSubscription) Unsubscribe() error {
	err := s.sub.Unsubscribe()
	if err == nil {
		Subscribers.Add(context.Background(), -1)
	}
	return err
}
