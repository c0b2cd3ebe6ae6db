// Package memory provides a broker implementation for tests and local runs.
// It mimics the at-least-once contract of the real broker: messages must be
// acknowledged, and a Nack puts the message back on its queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/scrapejobs/scrapejobs/internal/scraping"
)

// Broker implements scraping.TaskPublisher and scraping.TaskConsumer over
// bounded in-process channels, one per queue name.
type Broker struct {
	mu       sync.Mutex
	queues   map[string]chan scraping.TaskMessage
	capacity int
	closed   bool

	// PublishErr, when set, makes every Publish fail. Tests use it to
	// simulate an unreachable broker.
	PublishErr error
}

// New constructs a Broker whose queues hold up to capacity messages.
func New(capacity int) *Broker {
	if capacity <= 0 {
		capacity = 64
	}
	return &Broker{
		queues:   make(map[string]chan scraping.TaskMessage),
		capacity: capacity,
	}
}

func (b *Broker) queue(name string) chan scraping.TaskMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = make(chan scraping.TaskMessage, b.capacity)
		b.queues[name] = q
	}
	return q
}

// Publish pushes a task onto the named queue or fails when the queue is full
// or the context ends.
func (b *Broker) Publish(ctx context.Context, queue string, task scraping.TaskMessage) error {
	if b.PublishErr != nil {
		return &scraping.PublishError{Queue: queue, Err: b.PublishErr}
	}
	select {
	case b.queue(queue) <- task:
		return nil
	case <-ctx.Done():
		return &scraping.PublishError{Queue: queue, Err: ctx.Err()}
	default:
		return &scraping.PublishError{Queue: queue, Err: fmt.Errorf("queue %q is full", queue)}
	}
}

// Close marks the broker closed. Queued messages are dropped.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Receive delivers tasks from the named queue one at a time until ctx ends.
// A Nack re-enqueues the message, modelling broker redelivery.
func (b *Broker) Receive(
	ctx context.Context,
	queue string,
	handle func(context.Context, scraping.TaskDelivery),
) error {
	q := b.queue(queue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-q:
			handle(ctx, scraping.TaskDelivery{
				Task: task,
				Ack:  func() {},
				Nack: func() {
					select {
					case q <- task:
					default:
						// Queue full on redelivery; the message is lost, which
						// a test would catch as a missing terminal transition.
					}
				},
			})
		}
	}
}

// Pending reports how many messages sit unconsumed on a queue.
func (b *Broker) Pending(queue string) int {
	return len(b.queue(queue))
}
