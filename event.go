package eventsource

import (
	"time"

	"github.com/google/uuid"
)

var now = time.Now

// Event is an immutable record of something that happened. Every event is
// attributed to exactly one aggregate stream or one saga stream; the
// default validator rejects events carrying neither identity.
//
// Events are value types. Augmentation during commit produces new values
// and never mutates the input.
type Event struct {
	ID               uuid.UUID      `json:"id"`
	Type             string         `json:"type"`
	AggregateID      string         `json:"aggregateId,omitempty"`
	AggregateVersion uint64         `json:"aggregateVersion,omitempty"`
	SagaID           string         `json:"sagaId,omitempty"`
	SagaVersion      *uint64        `json:"sagaVersion,omitempty"`
	Context          map[string]any `json:"context,omitempty"`
	Payload          any            `json:"payload,omitempty"`
	OccurredAt       time.Time      `json:"occurredAt"`
}

// Command is a request for an aggregate to do something. The saga identity
// and context travel onto committed events when the command is passed to
// Store.Commit via WithSourceCommand.
type Command struct {
	Type        string
	AggregateID string
	SagaID      string
	SagaVersion *uint64
	Context     map[string]any
	Payload     any
}

// Filter narrows storage queries. BeforeEvent restricts the result to
// events strictly older than the referenced event's version; saga queries
// require BeforeEvent with SagaVersion set.
type Filter struct {
	BeforeEvent *Event
}
