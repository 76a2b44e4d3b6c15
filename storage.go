package eventsource

import "context"

// Storage is the durable backend the Store writes to and reads from. A
// Storage persists committed events in order and is the sole authority on
// optimistic-concurrency conflicts: CommitEvents must reject a batch whose
// aggregate events are not stamped with the stream's next versions.
//
// Implementations must guarantee:
//   - Events of one CommitEvents call are persisted atomically, in order.
//   - Query results are returned oldest first.
//   - A version conflict surfaces as *VersionConflictError.
//
// The Store adds no retry or backoff; storage errors propagate verbatim.
type Storage interface {
	// CommitEvents atomically appends the stream. Partial persistence is
	// not allowed: either every event lands or none does.
	CommitEvents(ctx context.Context, events Stream) error

	// GetEvents returns all persisted events, optionally restricted to the
	// given types. No types means everything.
	GetEvents(ctx context.Context, eventTypes ...string) ([]Event, error)

	// GetAggregateEvents returns the events of one aggregate stream. A nil
	// filter means the full stream; a BeforeEvent filter bounds the result
	// to versions strictly below the referenced aggregate version.
	GetAggregateEvents(ctx context.Context, aggregateID string, filter *Filter) ([]Event, error)

	// GetSagaEvents returns the events of one saga stream, bounded to saga
	// versions strictly below filter.BeforeEvent.SagaVersion.
	GetSagaEvents(ctx context.Context, sagaID string, filter Filter) ([]Event, error)

	// NewID returns a fresh unique identifier.
	NewID(ctx context.Context) (string, error)
}
