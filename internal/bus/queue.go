package bus

import (
	"context"
	"errors"
	"sync"

	"tradecore/internal/schema"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Event is the unit passed through the in-memory bus.
type Event struct {
	Header  schema.EventHeader
	Payload any
}

// Queue is a bounded multi-producer, single-consumer event queue. Events from
// one producer are delivered in publish order.
type Queue struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan Event, capacity),
		done: make(chan struct{}),
	}
}

// Publish enqueues an event, waiting for capacity. Ingest uses it so a slow
// consumer applies backpressure instead of losing events.
func (q *Queue) Publish(ctx context.Context, e Event) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- e:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e Event) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Events is the consumer side of the queue.
func (q *Queue) Events() <-chan Event {
	return q.ch
}

// Done is closed once the queue stops accepting events.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue from accepting new events. Buffered events remain
// readable through Events.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.done)
	})
}
