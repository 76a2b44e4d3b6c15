package eventsource

import "context"

// EventHandler handles a single committed event.
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription is a handle on an active subscription.
type Subscription interface {
	// Unsubscribe removes the handler. It is safe to call more than once.
	Unsubscribe() error
}

// SubscribeConfig carries per-subscription settings for a MessageBus.
type SubscribeConfig struct {
	// Queue is the named queue the subscription joins. On a bus with
	// native queue support, handlers in the same queue share delivery;
	// otherwise the Store emulates single-node queue semantics.
	Queue string
}

// SubscribeOption configures a single Subscribe call.
type SubscribeOption func(*SubscribeConfig)

// WithQueue joins the subscription to a named queue.
func WithQueue(name string) SubscribeOption {
	return func(cfg *SubscribeConfig) { cfg.Queue = name }
}

// MessageBus distributes committed events to subscribers with
// at-least-once semantics. Delivery order across subscribers is not
// guaranteed.
type MessageBus interface {
	// Publish delivers one event to every matching subscriber.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for one message type.
	Subscribe(messageType string, handler EventHandler, opts ...SubscribeOption) (Subscription, error)

	// SupportsQueues reports whether the bus natively implements named
	// queue groups. When false, the Store emulates single-node queue
	// semantics by filtering on the committed hostname tag.
	SupportsQueues() bool

	// Close shuts the bus down and releases its subscriptions.
	Close() error
}
