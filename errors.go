package eventsource

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed Store or bus.
var ErrClosed = errors.New("eventsource: closed")

// ArgumentError reports a malformed or missing required argument on a
// public call. It is raised before any collaborator is touched.
type ArgumentError struct {
	Name   string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Name, e.Reason)
}

// ValidationError reports an event that failed structural validation
// during commit. A single validation failure aborts the whole batch.
type ValidationError struct {
	Event  Event
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event %q: %s", e.Event.Type, e.Reason)
}

// ConfigError reports a store misconfiguration, such as a named-queue
// subscription without a configured hostname or a duplicate queue
// registration on the same node.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}

// VersionConflictError is returned by storage collaborators when an
// event's stamped version does not match the current stream head. It is
// the optimistic-concurrency signal; the store propagates it verbatim.
type VersionConflictError struct {
	StreamID string
	Expected uint64
	Stamped  uint64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("stream %q: version conflict: head expects %d, event stamped %d",
		e.StreamID, e.Expected, e.Stamped)
}

// UnhandledCommandError is returned by Aggregate.Handle when no handler is
// registered for the command type.
type UnhandledCommandError struct {
	CommandType string
}

func (e *UnhandledCommandError) Error() string {
	return fmt.Sprintf("no handler registered for command %q", e.CommandType)
}
