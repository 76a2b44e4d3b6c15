// Package nats provides a MessageBus collaborator on NATS. Queue
// semantics are native: subscriptions carrying a queue name join a NATS
// queue group, so the store never needs to emulate them.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	natsgo "github.com/nats-io/nats.go"

	"github.com/tidemark/eventsource"
)

// Config holds the adapter settings.
type Config struct {
	// SubjectPrefix prefixes every event subject,
	// e.g. "shop" -> shop.events.OrderCreated.
	SubjectPrefix string

	// Log receives handler and decode failures. Defaults to slog.Default.
	Log *slog.Logger
}

// Option is a functional option for configuring the bus.
type Option func(*Config)

// WithSubjectPrefix sets the subject prefix.
func WithSubjectPrefix(prefix string) Option {
	return func(c *Config) { c.SubjectPrefix = prefix }
}

// WithLogger sets the diagnostics logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Config) { c.Log = log }
}

// Bus publishes events as JSON frames on per-type subjects. Decoded
// payloads are generic JSON values; subscribers needing concrete types
// re-decode from the payload.
//
// The caller owns the connection's lifecycle; Close only releases the
// bus's subscriptions.
type Bus struct {
	nc     *natsgo.Conn
	prefix string
	log    *slog.Logger

	mu   sync.Mutex
	subs map[*natsgo.Subscription]struct{}

	closed atomic.Bool
}

// New wraps an established NATS connection.
func New(nc *natsgo.Conn, opts ...Option) *Bus {
	cfg := Config{SubjectPrefix: "eventsource"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	return &Bus{
		nc:     nc,
		prefix: cfg.SubjectPrefix,
		log:    cfg.Log.With(slog.String("bus", "nats")),
		subs:   make(map[*natsgo.Subscription]struct{}),
	}
}

func (b *Bus) subject(messageType string) string {
	return b.prefix + ".events." + messageType
}

// Publish sends one event to its type subject.
func (b *Bus) Publish(ctx context.Context, event eventsource.Event) error {
	if b.closed.Load() {
		return eventsource.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	frame, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %q: %w", event.Type, err)
	}

	if err := b.nc.Publish(b.subject(event.Type), frame); err != nil {
		return fmt.Errorf("nats: publish %q: %w", event.Type, err)
	}
	return nil
}

// Subscribe registers a handler for one message type. A queue option
// joins the matching NATS queue group.
func (b *Bus) Subscribe(messageType string, handler eventsource.EventHandler, opts ...eventsource.SubscribeOption) (eventsource.Subscription, error) {
	if b.closed.Load() {
		return nil, eventsource.ErrClosed
	}
	if messageType == "" {
		return nil, &eventsource.ArgumentError{Name: "messageType", Reason: "must not be empty"}
	}
	if handler == nil {
		return nil, &eventsource.ArgumentError{Name: "handler", Reason: "must not be nil"}
	}

	var cfg eventsource.SubscribeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	cb := func(msg *natsgo.Msg) {
		var ev eventsource.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.log.Error("decode event frame", slog.String("subject", msg.Subject), slog.Any("error", err))
			return
		}
		if err := handler.Handle(context.Background(), ev); err != nil {
			b.log.Error("handle event", slog.String("type", ev.Type), slog.Any("error", err))
		}
	}

	var (
		sub *natsgo.Subscription
		err error
	)
	subj := b.subject(messageType)
	if cfg.Queue != "" {
		sub, err = b.nc.QueueSubscribe(subj, cfg.Queue, cb)
	} else {
		sub, err = b.nc.Subscribe(subj, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe %q: %w", messageType, err)
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return &subscription{bus: b, sub: sub}, nil
}

// SupportsQueues reports native queue-group support.
func (b *Bus) SupportsQueues() bool { return true }

// Close releases all subscriptions held by this bus.
func (b *Bus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = make(map[*natsgo.Subscription]struct{})
	return nil
}

type subscription struct {
	bus *Bus
	sub *natsgo.Subscription
}

func (s *subscription) Unsubscribe() error {
	if s.sub == nil {
		return nil
	}
	err := s.sub.Unsubscribe()
	s.bus.mu.Lock()
	delete(s.bus.subs, s.sub)
	s.bus.mu.Unlock()
	return err
}

var _ eventsource.MessageBus = (*Bus)(nil)
