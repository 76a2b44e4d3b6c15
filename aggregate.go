package eventsource

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// State is the mutable part of an aggregate. Mutate applies one event; it
// is called both during replay and immediately after Emit.
type State interface {
	Mutate(event Event)
}

// CommandHandlerFunc executes one command against an aggregate. It
// receives the command payload and context and is expected to call Emit
// zero or more times on the aggregate it is registered on.
type CommandHandlerFunc func(ctx context.Context, payload any, cmdContext map[string]any) error

// HandlerMap is an explicit routing table from command type to handler,
// built once per aggregate type.
type HandlerMap map[string]CommandHandlerFunc

// Aggregate replays historical events to reconstruct state and emits new
// events in response to commands. Its version counter starts at 0 and
// increments by exactly one per applied event; emitted events are stamped
// with the version they were emitted at, which is the
// optimistic-concurrency token the storage collaborator checks.
//
// An Aggregate is owned by the command-handling routine that constructed
// it and must not be shared across concurrent operations. It is discarded
// after its changes are committed.
type Aggregate struct {
	id       string
	version  uint64
	changes  []Event
	state    State
	handlers HandlerMap
}

// AggregateOption configures aggregate construction.
type AggregateOption func(*Aggregate)

// WithState attaches a state object. An aggregate without state still
// tracks its version.
func WithState(state State) AggregateOption {
	return func(a *Aggregate) { a.state = state }
}

// WithHandlers installs the command routing table.
func WithHandlers(handlers HandlerMap) AggregateOption {
	return func(a *Aggregate) {
		for t, h := range handlers {
			a.handlers[t] = h
		}
	}
}

// NewAggregate constructs an aggregate and replays the given history, in
// order, to reconstruct its current state. Replay mutates state and
// advances the version but never populates Changes; only Emit does that.
func NewAggregate(id string, history []Event, opts ...AggregateOption) (*Aggregate, error) {
	if id == "" {
		return nil, &ArgumentError{Name: "id", Reason: "must not be empty"}
	}

	a := &Aggregate{
		id:       id,
		handlers: make(HandlerMap),
	}
	for _, opt := range opts {
		opt(a)
	}

	for i, ev := range history {
		if ev.AggregateID != "" && ev.AggregateID != id {
			return nil, &ArgumentError{
				Name:   "history",
				Reason: fmt.Sprintf("event %d belongs to aggregate %q, not %q", i, ev.AggregateID, id),
			}
		}
		a.apply(ev)
	}

	return a, nil
}

// Register adds one command handler to the routing table.
func (a *Aggregate) Register(commandType string, handler CommandHandlerFunc) {
	a.handlers[commandType] = handler
}

// Handle routes a command to its registered handler, invoked with the
// command's payload and context. The handler may call Emit any number of
// times.
func (a *Aggregate) Handle(ctx context.Context, cmd Command) error {
	if cmd.Type == "" {
		return &ArgumentError{Name: "command", Reason: "type must not be empty"}
	}

	handler, ok := a.handlers[cmd.Type]
	if !ok {
		return &UnhandledCommandError{CommandType: cmd.Type}
	}

	return handler(ctx, cmd.Payload, cmd.Context)
}

// Emit produces a new event stamped with the aggregate's id and current
// version, applies it immediately and appends it to the uncommitted
// changes. It is the only way new events are produced.
func (a *Aggregate) Emit(eventType string, payload any) Event {
	ev := Event{
		Type:             eventType,
		AggregateID:      a.id,
		AggregateVersion: a.version,
		Payload:          payload,
		OccurredAt:       now(),
	}

	a.apply(ev)
	a.changes = append(a.changes, ev)

	return ev
}

// apply mutates state and advances the version. Shared by replay and Emit.
func (a *Aggregate) apply(ev Event) {
	if a.state != nil {
		a.state.Mutate(ev)
	}
	a.version++
}

// ID returns the aggregate identity.
func (a *Aggregate) ID() string { return a.id }

// Version returns the current version counter.
func (a *Aggregate) Version() uint64 { return a.version }

// State returns the live state object, or nil.
func (a *Aggregate) State() State { return a.state }

// Changes returns the uncommitted events emitted since construction.
func (a *Aggregate) Changes() Stream {
	return NewStream(a.changes, nil)
}

// Snapshot returns a deep, fully detached copy of the aggregate state for
// external caching. The live state object is never handed out. Returns
// nil when the aggregate has no state.
func (a *Aggregate) Snapshot() (State, error) {
	if a.state == nil {
		return nil, nil
	}

	raw, err := json.Marshal(a.state)
	if err != nil {
		return nil, fmt.Errorf("snapshot state: %w", err)
	}

	t := reflect.TypeOf(a.state)
	var fresh reflect.Value
	if t.Kind() == reflect.Pointer {
		fresh = reflect.New(t.Elem())
	} else {
		fresh = reflect.New(t)
	}

	if err := json.Unmarshal(raw, fresh.Interface()); err != nil {
		return nil, fmt.Errorf("snapshot state: %w", err)
	}

	if t.Kind() == reflect.Pointer {
		return fresh.Interface().(State), nil
	}
	return fresh.Elem().Interface().(State), nil
}
