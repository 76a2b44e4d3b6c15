package nats_test

import (
	"context"
	"os"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/tidemark/eventsource"
	"github.com/tidemark/eventsource/bus/nats"
)

// connect dials the server named by NATS_URL; without one the test is
// skipped so the suite stays runnable offline.
func connect(t *testing.T) *natsgo.Conn {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}

	nc, err := natsgo.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestBus_PublishReachesSubscriber(t *testing.T) {
	nc := connect(t)
	bus := nats.New(nc, nats.WithSubjectPrefix("eventsource-test"))
	defer bus.Close()

	received := make(chan eventsource.Event, 1)
	sub, err := bus.Subscribe("OrderCreated", eventsource.HandlerFunc(func(ctx context.Context, ev eventsource.Event) error {
		received <- ev
		return nil
	}))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	err = bus.Publish(context.Background(), eventsource.Event{
		Type:        "OrderCreated",
		AggregateID: "order-1",
		Payload:     map[string]any{"total": 42.0},
	})
	require.NoError(t, err)

	select {
	case ev := <-received:
		require.Equal(t, "OrderCreated", ev.Type)
		require.Equal(t, "order-1", ev.AggregateID)
		require.Equal(t, map[string]any{"total": 42.0}, ev.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_QueueGroupDeliversOnce(t *testing.T) {
	nc := connect(t)
	bus := nats.New(nc, nats.WithSubjectPrefix("eventsource-test"))
	defer bus.Close()

	require.True(t, bus.SupportsQueues())

	received := make(chan string, 2)
	for _, member := range []string{"a", "b"} {
		member := member
		sub, err := bus.Subscribe("OrderCreated", eventsource.HandlerFunc(func(ctx context.Context, ev eventsource.Event) error {
			received <- member
			return nil
		}), eventsource.WithQueue("billing"))
		require.NoError(t, err)
		defer sub.Unsubscribe()
	}

	err := bus.Publish(context.Background(), eventsource.Event{Type: "OrderCreated"})
	require.NoError(t, err)

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for queue delivery")
	}

	// only one queue member may see the event
	select {
	case member := <-received:
		t.Fatalf("second delivery to member %q", member)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBus_ClosedBusRejectsOperations(t *testing.T) {
	nc := connect(t)
	bus := nats.New(nc)
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), eventsource.Event{Type: "OrderCreated"})
	require.ErrorIs(t, err, eventsource.ErrClosed)

	_, err = bus.Subscribe("OrderCreated", eventsource.HandlerFunc(func(context.Context, eventsource.Event) error { return nil }))
	require.ErrorIs(t, err, eventsource.ErrClosed)
}

func TestBus_SubscribeValidatesArguments(t *testing.T) {
	nc := connect(t)
	bus := nats.New(nc)
	defer bus.Close()

	_, err := bus.Subscribe("", eventsource.HandlerFunc(func(context.Context, eventsource.Event) error { return nil }))
	var aerr *eventsource.ArgumentError
	require.ErrorAs(t, err, &aerr)

	_, err = bus.Subscribe("OrderCreated", nil)
	require.ErrorAs(t, err, &aerr)
}
