// Package queue implements an unbounded FIFO with task accounting:
// every item taken by Get must be acknowledged by Done,
// and Join blocks until all the items put so far have been acknowledged.
package queue

import (
	"context"
	"sync"
)

// Queue is safe for any number of producers.
// Get is meant to be called by a single consumer.
type Queue[T any] struct {
	mu         sync.Mutex
	items      []T
	unfinished int
	avail      chan struct{} // closed on the next Put
	idle       chan struct{} // closed when unfinished drops to 0
}

// New creates an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Put appends v to the tail of the queue. It never blocks.
func (q *Queue[T]) Put(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, v)
	q.unfinished++
	if q.avail != nil {
		close(q.avail)
		q.avail = nil
	}
}

// Get removes and returns the head of the queue,
// blocking until an item is available or ctx is done.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return v, nil
		}
		if q.avail == nil {
			q.avail = make(chan struct{})
		}
		avail := q.avail
		q.mu.Unlock()

		select {
		case <-avail:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Done acknowledges one item previously returned by Get.
// Panics if called more times than items were put.
func (q *Queue[T]) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished <= 0 {
		panic("queue: Done called too many times")
	}
	q.unfinished--
	if q.unfinished == 0 && q.idle != nil {
		close(q.idle)
		q.idle = nil
	}
}

// Join blocks until every item put has been acknowledged, or ctx is done.
func (q *Queue[T]) Join(ctx context.Context) error {
	q.mu.Lock()
	if q.unfinished == 0 {
		q.mu.Unlock()
		return nil
	}
	if q.idle == nil {
		q.idle = make(chan struct{})
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of items waiting to be taken.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Unfinished returns the number of items put but not yet acknowledged.
func (q *Queue[T]) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}
