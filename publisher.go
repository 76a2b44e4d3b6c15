package eventsource

import (
	"context"
	"log/slog"
	"sync"
)

// publisher owns post-persistence publication. Synchronous commits call
// publish inline; asynchronous commits hand the batch to the worker
// goroutine, whose failures are logged and never surfaced to the
// committer.
type publisher struct {
	bus    MessageBus
	logger *slog.Logger

	tasks chan Stream
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newPublisher(bus MessageBus, logger *slog.Logger) *publisher {
	p := &publisher{
		bus:    bus,
		logger: logger,
		tasks:  make(chan Stream, 64),
	}

	p.wg.Add(1)
	go p.run()

	return p
}

func (p *publisher) run() {
	defer p.wg.Done()

	for batch := range p.tasks {
		for _, ev := range batch {
			if err := p.bus.Publish(context.Background(), ev); err != nil {
				p.logger.Error("publish committed event",
					"type", ev.Type,
					"aggregateId", ev.AggregateID,
					"sagaId", ev.SagaID,
					"error", err,
				)
			}
		}
	}
}

// publish delivers the batch inline, stopping at the first failure.
func (p *publisher) publish(ctx context.Context, batch Stream) error {
	for _, ev := range batch {
		if err := p.bus.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// enqueue hands the batch to the background worker. Returns ErrClosed
// after close so a late commit is not silently dropped.
func (p *publisher) enqueue(batch Stream) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.tasks <- batch
	return nil
}

// close stops the worker after draining queued batches.
func (p *publisher) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
