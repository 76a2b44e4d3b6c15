// Package eventsource is an event-sourcing core: it persists domain
// events as the system of record, replays them to reconstruct aggregate
// state, and distributes committed events to subscribers with
// at-least-once delivery.
//
// The Store owns validation, atomic commit, stream assembly and
// publish/subscribe dispatch; the Aggregate owns optimistic-concurrency
// version tracking, event replay and command-to-event emission. Durable
// storage and message transport are collaborators injected behind the
// Storage and MessageBus interfaces; in-memory, sqlite and NATS
// implementations live in the subpackages.
package eventsource
