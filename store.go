package eventsource

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/google/uuid"
)

// ValidateFunc checks one augmented event before persistence. Returning a
// non-nil error aborts the whole commit.
type ValidateFunc func(Event) error

// ValidateEvent is the default structural validator: the type must be a
// non-empty string, the event must carry an aggregate or saga identity,
// and a saga id requires a saga version.
func ValidateEvent(ev Event) error {
	if ev.Type == "" {
		return &ValidationError{Event: ev, Reason: "type must not be empty"}
	}
	if ev.AggregateID == "" && ev.SagaID == "" {
		return &ValidationError{Event: ev, Reason: "aggregateId or sagaId required"}
	}
	if ev.SagaID != "" && ev.SagaVersion == nil {
		return &ValidationError{Event: ev, Reason: "sagaVersion required with sagaId"}
	}
	return nil
}

// Store is the event-sourcing core: it validates, augments and atomically
// commits domain events through a Storage collaborator, then distributes
// them to subscribers through a MessageBus collaborator with
// at-least-once semantics.
//
// The Store owns its collaborators for their lifetime. It adds no retry
// or locking of its own; ordering between concurrent commits and conflict
// detection are the storage collaborator's concern.
type Store struct {
	cfg      Config
	storage  Storage
	bus      MessageBus
	validate ValidateFunc
	logger   *slog.Logger
	pub      *publisher

	mu     sync.Mutex
	queues map[queueKey]struct{}
	closed bool
}

type queueKey struct {
	queue       string
	messageType string
}

// Option configures a Store.
type Option func(*Store)

// WithBus supplies the message-bus collaborator. Without it the store
// uses the in-process memory bus.
func WithBus(bus MessageBus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithConfig replaces the whole store configuration.
func WithConfig(cfg Config) Option {
	return func(s *Store) { s.cfg = cfg }
}

// WithHostname sets the unique node hostname stamped into committed
// events and required for named-queue emulation.
func WithHostname(hostname string) Option {
	return func(s *Store) { s.cfg.Hostname = hostname }
}

// WithPublishAsync selects the publish mode; see Config.PublishAsync.
func WithPublishAsync(async bool) Option {
	return func(s *Store) { s.cfg.PublishAsync = async }
}

// WithValidator replaces the default event validator.
func WithValidator(fn ValidateFunc) Option {
	return func(s *Store) { s.validate = fn }
}

// WithLogger sets the logger used for async publish failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New constructs a Store around the given storage collaborator.
func New(storage Storage, opts ...Option) *Store {
	s := &Store{
		cfg:      Config{PublishAsync: true},
		storage:  storage,
		validate: ValidateEvent,
		logger:   slog.Default(),
		queues:   make(map[queueKey]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus == nil {
		s.bus = NewMemoryBus()
	}
	s.pub = newPublisher(s.bus, s.logger)
	return s
}

// NewID returns a fresh unique identifier from storage. Failure is fatal
// and propagated.
func (s *Store) NewID(ctx context.Context) (string, error) {
	return s.storage.NewID(ctx)
}

// Events returns all committed events, optionally restricted to the given
// types, as a Stream.
func (s *Store) Events(ctx context.Context, eventTypes ...string) (Stream, error) {
	events, err := s.storage.GetEvents(ctx, eventTypes...)
	if err != nil {
		return nil, err
	}
	return NewStream(events, nil), nil
}

// AggregateEvents returns one aggregate's stream, optionally bounded by
// the filter.
func (s *Store) AggregateEvents(ctx context.Context, aggregateID string, filter *Filter) (Stream, error) {
	if aggregateID == "" {
		return nil, &ArgumentError{Name: "aggregateID", Reason: "must not be empty"}
	}

	events, err := s.storage.GetAggregateEvents(ctx, aggregateID, filter)
	if err != nil {
		return nil, err
	}
	return NewStream(events, nil), nil
}

// SagaEvents returns one saga's stream. The filter is mandatory and must
// bound the result with BeforeEvent carrying a saga version.
func (s *Store) SagaEvents(ctx context.Context, sagaID string, filter Filter) (Stream, error) {
	if sagaID == "" {
		return nil, &ArgumentError{Name: "sagaID", Reason: "must not be empty"}
	}
	if filter.BeforeEvent == nil || filter.BeforeEvent.SagaVersion == nil {
		return nil, &ArgumentError{Name: "filter", Reason: "beforeEvent.sagaVersion required"}
	}

	events, err := s.storage.GetSagaEvents(ctx, sagaID, filter)
	if err != nil {
		return nil, err
	}
	return NewStream(events, nil), nil
}

// CommitConfig carries per-commit settings.
type CommitConfig struct {
	SourceCommand *Command
}

// CommitOption configures a single Commit call.
type CommitOption func(*CommitConfig)

// WithSourceCommand augments every committed event with the command's
// saga identity and context.
func WithSourceCommand(cmd *Command) CommitOption {
	return func(cfg *CommitConfig) { cfg.SourceCommand = cmd }
}

// Commit is the core write path: augment, validate, persist, publish.
//
// An empty input is a no-op that touches neither storage nor bus. Any
// validation failure aborts the whole batch before persistence. Storage
// failures propagate verbatim and nothing is published. After a
// successful persist, synchronous mode awaits publication and returns its
// failure as the commit's failure even though the write already
// succeeded; asynchronous mode (the default) returns immediately and
// publish failures are only visible in the log.
//
// Context merging: the configured hostname seeds each event's context,
// the source command's context is layered on top and the event's own
// context wins last, so caller-supplied keys override the hostname on
// collision and pre-existing keys are never clobbered.
func (s *Store) Commit(ctx context.Context, events []Event, opts ...CommitOption) (Stream, error) {
	if len(events) == 0 {
		return Stream{}, nil
	}

	var cfg CommitConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	stream := NewStream(events, func(ev Event) Event {
		return s.augment(ev, cfg.SourceCommand)
	})

	for _, ev := range stream {
		if err := s.validate(ev); err != nil {
			return nil, err
		}
	}

	if err := s.storage.CommitEvents(ctx, stream); err != nil {
		return nil, err
	}

	if s.cfg.PublishAsync {
		if err := s.pub.enqueue(stream); err != nil {
			return nil, err
		}
		return stream, nil
	}

	if err := s.pub.publish(ctx, stream); err != nil {
		return nil, err
	}
	return stream, nil
}

// augment returns a copy of ev enriched with the source command's saga
// identity and the merged context. The input event is never mutated.
func (s *Store) augment(ev Event, cmd *Command) Event {
	if cmd != nil {
		if ev.SagaID == "" {
			ev.SagaID = cmd.SagaID
		}
		if ev.SagaVersion == nil && cmd.SagaVersion != nil {
			v := *cmd.SagaVersion
			ev.SagaVersion = &v
		}
	}

	merged := make(map[string]any)
	if s.cfg.Hostname != "" {
		merged["hostname"] = s.cfg.Hostname
	}
	if cmd != nil {
		maps.Copy(merged, cmd.Context)
	}
	maps.Copy(merged, ev.Context)
	if len(merged) > 0 {
		ev.Context = merged
	}

	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = now()
	}

	return ev
}

// On subscribes a handler to committed events of one type.
//
// With WithQueue on a bus that natively supports queues, the queue name
// is passed through. On a bus without native support the store emulates
// single-node queue delivery: it requires a configured hostname, rejects
// a duplicate (queue, type) registration on this node, and silently skips
// events committed on other nodes. This guarantees local idempotent
// handling, not cross-node load balancing.
func (s *Store) On(messageType string, handler EventHandler, opts ...SubscribeOption) (Subscription, error) {
	if messageType == "" {
		return nil, &ArgumentError{Name: "messageType", Reason: "must not be empty"}
	}
	if handler == nil {
		return nil, &ArgumentError{Name: "handler", Reason: "must not be nil"}
	}

	var cfg SubscribeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Queue == "" || s.bus.SupportsQueues() {
		return s.bus.Subscribe(messageType, handler, opts...)
	}

	if s.cfg.Hostname == "" {
		return nil, &ConfigError{Reason: "named queue emulation requires a configured hostname"}
	}

	key := queueKey{queue: cfg.Queue, messageType: messageType}
	s.mu.Lock()
	if _, dup := s.queues[key]; dup {
		s.mu.Unlock()
		return nil, &ConfigError{
			Reason: "queue " + cfg.Queue + " already has a handler for " + messageType + " on this node",
		}
	}
	s.queues[key] = struct{}{}
	s.mu.Unlock()

	filtered := HandlerFunc(func(ctx context.Context, ev Event) error {
		host, _ := ev.Context["hostname"].(string)
		if host != s.cfg.Hostname {
			return nil
		}
		return handler.Handle(ctx, ev)
	})

	sub, err := s.bus.Subscribe(messageType, filtered)
	if err != nil {
		s.mu.Lock()
		delete(s.queues, key)
		s.mu.Unlock()
		return nil, err
	}

	return &queueSubscription{store: s, key: key, sub: sub}, nil
}

type queueSubscription struct {
	store *Store
	key   queueKey
	sub   Subscription
	once  sync.Once
}

func (q *queueSubscription) Unsubscribe() error {
	var err error
	q.once.Do(func() {
		q.store.mu.Lock()
		delete(q.store.queues, q.key)
		q.store.mu.Unlock()
		err = q.sub.Unsubscribe()
	})
	return err
}

// Once subscribes to one or more message types and resolves with the
// first event that satisfies the optional filter. On the first match all
// subscriptions are removed, the optional handler runs exactly once and
// the event is delivered on the returned channel. There is no timeout: if
// no matching event ever arrives, the channel never yields.
func (s *Store) Once(messageTypes []string, filter func(Event) bool, handler EventHandler) (<-chan Event, error) {
	if len(messageTypes) == 0 {
		return nil, &ArgumentError{Name: "messageTypes", Reason: "must not be empty"}
	}

	result := make(chan Event, 1)

	var (
		latch sync.Once
		mu    sync.Mutex
		subs  []Subscription
		fired bool
	)

	unsubscribeAll := func() {
		mu.Lock()
		fired = true
		taken := subs
		subs = nil
		mu.Unlock()
		for _, sub := range taken {
			_ = sub.Unsubscribe()
		}
	}

	callback := HandlerFunc(func(ctx context.Context, ev Event) error {
		if filter != nil && !filter(ev) {
			return nil
		}

		var handleErr error
		// The latch guards the race where several subscribed types fire
		// before unsubscription completes: the body runs at most once.
		latch.Do(func() {
			unsubscribeAll()
			if handler != nil {
				handleErr = handler.Handle(ctx, ev)
			}
			result <- ev
		})
		return handleErr
	})

	for _, messageType := range messageTypes {
		if messageType == "" {
			unsubscribeAll()
			return nil, &ArgumentError{Name: "messageTypes", Reason: "must not contain empty types"}
		}

		sub, err := s.bus.Subscribe(messageType, callback)
		if err != nil {
			unsubscribeAll()
			return nil, err
		}

		mu.Lock()
		if fired {
			mu.Unlock()
			_ = sub.Unsubscribe()
			break
		}
		subs = append(subs, sub)
		mu.Unlock()
	}

	return result, nil
}

// Close stops the background publisher, draining queued batches, and
// closes the message bus. The storage collaborator's lifecycle belongs to
// whoever constructed it.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.pub.close()
	return s.bus.Close()
}
