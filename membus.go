package eventsource

import (
	"context"
	"errors"
	"sync"
)

// memoryBus is the in-process MessageBus the Store falls back to when no
// bus is supplied. Dispatch is synchronous: Publish invokes every matching
// handler inline and returns the first handler error, which is what makes
// the synchronous-publish failure contract of Commit observable.
//
// It has no native queue support; named queues go through the Store's
// single-node emulation.
type memoryBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]EventHandler
	closed bool
}

// NewMemoryBus returns an in-process MessageBus.
func NewMemoryBus() MessageBus {
	return &memoryBus{
		subs: make(map[string]map[uint64]EventHandler),
	}
}

func (b *memoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]EventHandler, 0, len(b.subs[event.Type]))
	for _, h := range b.subs[event.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h.Handle(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (b *memoryBus) Subscribe(messageType string, handler EventHandler, opts ...SubscribeOption) (Subscription, error) {
	if messageType == "" {
		return nil, &ArgumentError{Name: "messageType", Reason: "must not be empty"}
	}
	if handler == nil {
		return nil, &ArgumentError{Name: "handler", Reason: "must not be nil"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	if b.subs[messageType] == nil {
		b.subs[messageType] = make(map[uint64]EventHandler)
	}
	id := b.nextID
	b.nextID++
	b.subs[messageType][id] = handler

	return &memorySubscription{bus: b, messageType: messageType, id: id}, nil
}

func (b *memoryBus) SupportsQueues() bool { return false }

func (b *memoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.subs = make(map[string]map[uint64]EventHandler)
	return nil
}

type memorySubscription struct {
	bus         *memoryBus
	messageType string
	id          uint64
	once        sync.Once
}

func (s *memorySubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if s.bus.closed {
			err = errors.Join(err, ErrClosed)
			return
		}
		delete(s.bus.subs[s.messageType], s.id)
	})
	return err
}
