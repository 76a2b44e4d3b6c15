package eventsource_test

import (
	"context"
	"errors"
	"testing"

	"github.com/tidemark/eventsource"
)

func TestMemoryBus_PublishReachesTypeSubscribersOnly(t *testing.T) {
	bus := eventsource.NewMemoryBus()
	defer bus.Close()

	var created, updated int
	_, err := bus.Subscribe("Created", eventsource.HandlerFunc(func(ctx context.Context, ev eventsource.Event) error {
		created++
		return nil
	}))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_, err = bus.Subscribe("Updated", eventsource.HandlerFunc(func(ctx context.Context, ev eventsource.Event) error {
		updated++
		return nil
	}))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(context.Background(), eventsource.Event{Type: "Created"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if created != 1 || updated != 0 {
		t.Errorf("expected only Created subscriber to fire, got created=%d updated=%d", created, updated)
	}
}

func TestMemoryBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := eventsource.NewMemoryBus()
	defer bus.Close()

	var calls int
	sub, err := bus.Subscribe("Created", eventsource.HandlerFunc(func(ctx context.Context, ev eventsource.Event) error {
		calls++
		return nil
	}))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("expected repeated unsubscribe to be safe, got %v", err)
	}

	if err := bus.Publish(context.Background(), eventsource.Event{Type: "Created"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no delivery after unsubscribe, got %d", calls)
	}
}

func TestMemoryBus_ClosedBusRejectsOperations(t *testing.T) {
	bus := eventsource.NewMemoryBus()
	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := bus.Publish(context.Background(), eventsource.Event{Type: "Created"}); !errors.Is(err, eventsource.ErrClosed) {
		t.Errorf("expected ErrClosed on publish, got %v", err)
	}

	_, err := bus.Subscribe("Created", eventsource.HandlerFunc(func(context.Context, eventsource.Event) error { return nil }))
	if !errors.Is(err, eventsource.ErrClosed) {
		t.Errorf("expected ErrClosed on subscribe, got %v", err)
	}
}

func TestMemoryBus_NoNativeQueues(t *testing.T) {
	bus := eventsource.NewMemoryBus()
	defer bus.Close()

	if bus.SupportsQueues() {
		t.Error("expected the in-process bus to report no native queue support")
	}
}
