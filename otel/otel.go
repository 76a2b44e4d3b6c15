// Package otel provides OpenTelemetry decorators for the Storage and
// MessageBus collaborators.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tidemark/eventsource"
)

const instrumentationName = "github.com/tidemark/eventsource"

// Semantic attribute keys.
const (
	AttrOperation   = attribute.Key("eventsource.operation")
	AttrEventType   = attribute.Key("eventsource.event.type")
	AttrEventCount  = attribute.Key("eventsource.events.count")
	AttrAggregateID = attribute.Key("eventsource.aggregate.id")
	AttrSagaID      = attribute.Key("eventsource.saga.id")
	AttrMessageType = attribute.Key("eventsource.message.type")
	AttrQueueName   = attribute.Key("eventsource.queue.name")
)

var (
	meter  = otel.Meter(instrumentationName, metric.WithInstrumentationVersion(eventsource.InstrumentationVersion))
	tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(eventsource.InstrumentationVersion))

	// Storage metrics
	EventsCommitted, _ = meter.Int64Counter(
		"eventsource.events.committed",
		metric.WithDescription("Number of events committed to storage"),
		metric.WithUnit("{event}"),
	)

	EventsLoaded, _ = meter.Int64Counter(
		"eventsource.events.loaded",
		metric.WithDescription("Number of events loaded from storage"),
		metric.WithUnit("{event}"),
	)

	StorageDuration, _ = meter.Float64Histogram(
		"eventsource.storage.duration",
		metric.WithDescription("Storage operation duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	StorageErrors, _ = meter.Int64Counter(
		"eventsource.storage.errors",
		metric.WithDescription("Number of storage errors"),
		metric.WithUnit("{error}"),
	)

	ConcurrencyConflicts, _ = meter.Int64Counter(
		"eventsource.concurrency.conflicts",
		metric.WithDescription("Number of optimistic-concurrency conflicts"),
		metric.WithUnit("{conflict}"),
	)

	// Bus metrics
	EventsPublished, _ = meter.Int64Counter(
		"eventsource.bus.published",
		metric.WithDescription("Number of events published to the bus"),
		metric.WithUnit("{event}"),
	)

	EventsHandled, _ = meter.Int64Counter(
		"eventsource.bus.handled",
		metric.WithDescription("Number of events handled by subscribers"),
		metric.WithUnit("{event}"),
	)

	BusErrors, _ = meter.Int64Counter(
		"eventsource.bus.errors",
		metric.WithDescription("Number of bus publish and handler errors"),
		metric.WithUnit("{error}"),
	)

	Subscribers, _ = meter.Int64UpDownCounter(
		"eventsource.bus.subscribers",
		metric.WithDescription("Number of active subscriptions"),
		metric.WithUnit("{subscriber}"),
	)

	HandleDuration, _ = meter.Float64Histogram(
		"eventsource.bus.handle.duration",
		metric.WithDescription("Subscriber handler duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
)
