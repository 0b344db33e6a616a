// Package transport carries raw network message payloads from a message
// queue subscription to the decoder.
//
// Producers call Enqueue or Offer; the single consumer calls Receive with
// a timeout so it can observe cancellation between items.
package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// DefaultQueueSize is the queue capacity used when none is configured.
const DefaultQueueSize = 1024

// ErrQueueFull is returned by Offer when the queue has no free slot.
var ErrQueueFull = errors.New("transport queue full")

// Item is one message received from the transport.
type Item struct {
	// Topic is the channel or topic the payload arrived on.
	Topic string
	// Payload is the raw UADP network message.
	Payload []byte
}

// Queue is a bounded FIFO of items.
// Safe for concurrent producers and a single consumer.
type Queue struct {
	items   chan Item
	dropped atomic.Int64
}

// NewQueue creates a queue holding at most size items.
// A size <= 0 uses DefaultQueueSize.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{items: make(chan Item, size)}
}

// Enqueue adds an item, blocking while the queue is full.
func (q *Queue) Enqueue(ctx context.Context, item Item) error {
	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Offer adds an item without blocking. A full queue drops the item and
// returns ErrQueueFull.
func (q *Queue) Offer(item Item) error {
	select {
	case q.items <- item:
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// Receive waits up to timeout for an item. It returns false when the
// timeout elapses or ctx is done first.
func (q *Queue) Receive(ctx context.Context, timeout time.Duration) (Item, bool) {
	select {
	case item := <-q.items:
		return item, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item := <-q.items:
		return item, true
	case <-timer.C:
		return Item{}, false
	case <-ctx.Done():
		return Item{}, false
	}
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	return len(q.items)
}

// Dropped returns the number of items rejected by Offer.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}
