// Package memory provides an in-process Storage collaborator, used for
// tests and single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tidemark/eventsource"
)

// Storage keeps every committed event in memory, indexed by aggregate and
// saga, preserving global commit order. It enforces optimistic
// concurrency: an aggregate event must be stamped with the version the
// stream head expects next.
type Storage struct {
	mu          sync.RWMutex
	global      []eventsource.Event
	byAggregate map[string][]eventsource.Event
	bySaga      map[string][]eventsource.Event
}

// New returns an empty in-memory storage.
func New() *Storage {
	return &Storage{
		byAggregate: make(map[string][]eventsource.Event),
		bySaga:      make(map[string][]eventsource.Event),
	}
}

// CommitEvents atomically appends the stream. The whole batch is checked
// for version conflicts before anything is stored, so a conflict leaves
// storage untouched.
func (s *Storage) CommitEvents(ctx context.Context, events eventsource.Stream) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	heads := make(map[string]uint64)
	for _, ev := range events {
		if ev.AggregateID == "" {
			continue
		}
		head, ok := heads[ev.AggregateID]
		if !ok {
			head = uint64(len(s.byAggregate[ev.AggregateID]))
		}
		if ev.AggregateVersion != head {
			return &eventsource.VersionConflictError{
				StreamID: ev.AggregateID,
				Expected: head,
				Stamped:  ev.AggregateVersion,
			}
		}
		heads[ev.AggregateID] = head + 1
	}

	for _, ev := range events {
		s.global = append(s.global, ev)
		if ev.AggregateID != "" {
			s.byAggregate[ev.AggregateID] = append(s.byAggregate[ev.AggregateID], ev)
		}
		if ev.SagaID != "" {
			s.bySaga[ev.SagaID] = append(s.bySaga[ev.SagaID], ev)
		}
	}

	return nil
}

// GetEvents returns all events in commit order, optionally restricted to
// the given types.
func (s *Storage) GetEvents(ctx context.Context, eventTypes ...string) ([]eventsource.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(eventTypes) == 0 {
		out := make([]eventsource.Event, len(s.global))
		copy(out, s.global)
		return out, nil
	}

	wanted := make(map[string]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		wanted[t] = struct{}{}
	}

	var out []eventsource.Event
	for _, ev := range s.global {
		if _, ok := wanted[ev.Type]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

// GetAggregateEvents returns one aggregate's stream in version order. A
// BeforeEvent filter bounds the result to versions strictly below the
// referenced aggregate version.
func (s *Storage) GetAggregateEvents(ctx context.Context, aggregateID string, filter *eventsource.Filter) ([]eventsource.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.byAggregate[aggregateID]
	var out []eventsource.Event
	for _, ev := range events {
		if filter != nil && filter.BeforeEvent != nil && ev.AggregateVersion >= filter.BeforeEvent.AggregateVersion {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// GetSagaEvents returns one saga's stream bounded to saga versions
// strictly below filter.BeforeEvent.SagaVersion.
func (s *Storage) GetSagaEvents(ctx context.Context, sagaID string, filter eventsource.Filter) ([]eventsource.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []eventsource.Event
	for _, ev := range s.bySaga[sagaID] {
		if filter.BeforeEvent != nil && filter.BeforeEvent.SagaVersion != nil {
			if ev.SagaVersion == nil || *ev.SagaVersion >= *filter.BeforeEvent.SagaVersion {
				continue
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

// NewID returns a fresh uuid string.
func (s *Storage) NewID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}
