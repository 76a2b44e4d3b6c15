package eventsource_test

import (
	"context"
	"errors"
	"testing"

	"github.com/tidemark/eventsource"
)

// cartState is the fixture state used across the aggregate tests.
type cartState struct {
	Items []string `json:"items"`
}

func (s *cartState) Mutate(ev eventsource.Event) {
	if ev.Type == "ItemAdded" {
		if item, ok := ev.Payload.(string); ok {
			s.Items = append(s.Items, item)
		}
	}
}

func itemAdded(id string, version uint64, item string) eventsource.Event {
	return eventsource.Event{
		Type:             "ItemAdded",
		AggregateID:      id,
		AggregateVersion: version,
		Payload:          item,
	}
}

func TestNewAggregate_RequiresID(t *testing.T) {
	_, err := eventsource.NewAggregate("", nil)

	var aerr *eventsource.ArgumentError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}

func TestNewAggregate_RejectsForeignHistory(t *testing.T) {
	history := []eventsource.Event{itemAdded("cart-2", 0, "socks")}

	_, err := eventsource.NewAggregate("cart-1", history)

	var aerr *eventsource.ArgumentError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}

func TestNewAggregate_ReplayAdvancesVersionWithoutChanges(t *testing.T) {
	state := &cartState{}
	history := []eventsource.Event{
		itemAdded("cart-1", 0, "socks"),
		itemAdded("cart-1", 1, "shoes"),
		itemAdded("cart-1", 2, "hat"),
	}

	agg, err := eventsource.NewAggregate("cart-1", history, eventsource.WithState(state))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if agg.Version() != uint64(len(history)) {
		t.Errorf("expected version %d, got %d", len(history), agg.Version())
	}
	if agg.Changes().Len() != 0 {
		t.Errorf("expected no uncommitted changes after replay, got %d", agg.Changes().Len())
	}
	if len(state.Items) != 3 {
		t.Errorf("expected replay to mutate state, got %v", state.Items)
	}
}

func TestEmit_StampsCurrentVersionAndApplies(t *testing.T) {
	state := &cartState{}
	history := []eventsource.Event{
		itemAdded("cart-1", 0, "socks"),
		itemAdded("cart-1", 1, "shoes"),
	}

	agg, err := eventsource.NewAggregate("cart-1", history, eventsource.WithState(state))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	before := agg.Version()
	ev := agg.Emit("ItemAdded", "hat")

	if ev.AggregateID != "cart-1" {
		t.Errorf("expected aggregate id stamped, got %q", ev.AggregateID)
	}
	if ev.AggregateVersion != before {
		t.Errorf("expected event stamped with version %d, got %d", before, ev.AggregateVersion)
	}
	if agg.Version() != before+1 {
		t.Errorf("expected version %d after emit, got %d", before+1, agg.Version())
	}

	changes := agg.Changes()
	if changes.Len() != 1 {
		t.Fatalf("expected 1 uncommitted change, got %d", changes.Len())
	}
	if changes[0].AggregateVersion != before {
		t.Errorf("expected changes[0] stamped with %d, got %d", before, changes[0].AggregateVersion)
	}
	if len(state.Items) != 3 {
		t.Errorf("expected emit to apply immediately, got %v", state.Items)
	}
}

func TestHandle_RoutesToRegisteredHandler(t *testing.T) {
	agg, err := eventsource.NewAggregate("cart-1", nil, eventsource.WithState(&cartState{}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	agg.Register("AddItem", func(ctx context.Context, payload any, cmdContext map[string]any) error {
		agg.Emit("ItemAdded", payload)
		return nil
	})

	cmd := eventsource.Command{Type: "AddItem", AggregateID: "cart-1", Payload: "socks"}
	if err := agg.Handle(context.Background(), cmd); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if agg.Changes().Len() != 1 {
		t.Errorf("expected one emitted event, got %d", agg.Changes().Len())
	}
	if agg.Version() != 1 {
		t.Errorf("expected version 1, got %d", agg.Version())
	}
}

func TestHandle_RequiresCommandType(t *testing.T) {
	agg, _ := eventsource.NewAggregate("cart-1", nil)

	err := agg.Handle(context.Background(), eventsource.Command{})

	var aerr *eventsource.ArgumentError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}

func TestHandle_UnknownCommand(t *testing.T) {
	agg, _ := eventsource.NewAggregate("cart-1", nil)

	err := agg.Handle(context.Background(), eventsource.Command{Type: "Nope"})

	var uerr *eventsource.UnhandledCommandError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UnhandledCommandError, got %v", err)
	}
}

func TestHandle_WithHandlersOption(t *testing.T) {
	var agg *eventsource.Aggregate

	handlers := eventsource.HandlerMap{
		"AddItem": func(ctx context.Context, payload any, cmdContext map[string]any) error {
			agg.Emit("ItemAdded", payload)
			return nil
		},
	}

	agg, err := eventsource.NewAggregate("cart-1", nil, eventsource.WithHandlers(handlers))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := agg.Handle(context.Background(), eventsource.Command{Type: "AddItem", Payload: "hat"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if agg.Changes().Len() != 1 {
		t.Errorf("expected one change, got %d", agg.Changes().Len())
	}
}

func TestSnapshot_IsDetachedDeepCopy(t *testing.T) {
	state := &cartState{Items: []string{"socks"}}
	agg, err := eventsource.NewAggregate("cart-1", nil, eventsource.WithState(state))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	snap, err := agg.Snapshot()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	copied, ok := snap.(*cartState)
	if !ok {
		t.Fatalf("expected *cartState snapshot, got %T", snap)
	}
	if len(copied.Items) != 1 || copied.Items[0] != "socks" {
		t.Fatalf("expected snapshot of current state, got %v", copied.Items)
	}

	// Mutating the live state must not reach the snapshot.
	agg.Emit("ItemAdded", "shoes")
	if len(copied.Items) != 1 {
		t.Errorf("expected detached snapshot, got %v", copied.Items)
	}
}

func TestSnapshot_NoState(t *testing.T) {
	agg, _ := eventsource.NewAggregate("cart-1", nil)

	snap, err := agg.Snapshot()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if snap != nil {
		t.Errorf("expected nil snapshot without state, got %v", snap)
	}
}

func TestAggregate_VersionlessStateStillTracksVersion(t *testing.T) {
	agg, err := eventsource.NewAggregate("cart-1", []eventsource.Event{
		itemAdded("cart-1", 0, "socks"),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if agg.Version() != 1 {
		t.Errorf("expected version tracking without state, got %d", agg.Version())
	}
}
