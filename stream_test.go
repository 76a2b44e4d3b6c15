package eventsource_test

import (
	"strings"
	"testing"

	"github.com/tidemark/eventsource"
)

func TestNewStream_AppliesTransform(t *testing.T) {
	input := []eventsource.Event{
		{Type: "Created", AggregateID: "a1"},
		{Type: "Updated", AggregateID: "a1"},
	}

	stream := eventsource.NewStream(input, func(ev eventsource.Event) eventsource.Event {
		ev.Type = strings.ToUpper(ev.Type)
		return ev
	})

	if stream.Len() != 2 {
		t.Fatalf("expected 2 events, got %d", stream.Len())
	}
	if stream[0].Type != "CREATED" || stream[1].Type != "UPDATED" {
		t.Errorf("expected transformed types, got %q %q", stream[0].Type, stream[1].Type)
	}

	// the input slice must stay untouched
	if input[0].Type != "Created" {
		t.Errorf("expected input unchanged, got %q", input[0].Type)
	}
}

func TestStream_Map(t *testing.T) {
	stream := eventsource.NewStream([]eventsource.Event{{Type: "Created"}}, nil)

	mapped := stream.Map(func(ev eventsource.Event) eventsource.Event {
		ev.AggregateID = "a1"
		return ev
	})

	if mapped[0].AggregateID != "a1" {
		t.Errorf("expected mapped aggregate id, got %q", mapped[0].AggregateID)
	}
	if stream[0].AggregateID != "" {
		t.Error("expected original stream unchanged")
	}
}

func TestStream_String(t *testing.T) {
	tests := []struct {
		name   string
		stream eventsource.Stream
		want   string
	}{
		{
			name:   "empty",
			stream: eventsource.Stream{},
			want:   "empty stream",
		},
		{
			name:   "single",
			stream: eventsource.Stream{{Type: "Created"}},
			want:   "1 event (Created: 1)",
		},
		{
			name: "composition sorted by type",
			stream: eventsource.Stream{
				{Type: "Updated"},
				{Type: "Created"},
				{Type: "Updated"},
			},
			want: "3 events (Created: 1, Updated: 2)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stream.String(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
