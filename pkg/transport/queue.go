package transport

import (
	"context"
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("queue closed")

// Queue is an unbounded FIFO safe for one or more producers and consumers.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
	closed bool
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		signal: make(chan struct{}),
	}
}

// Put appends item and wakes up waiting consumers.
func (q *Queue[T]) Put(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.items = append(q.items, item)
	close(q.signal)
	q.signal = make(chan struct{})
}

// Get blocks until an item is available or ctx is done.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	return q.Take(ctx, nil)
}

// Take removes and returns the oldest item accepted by match. A nil match
// accepts everything. Items that are skipped keep their position.
func (q *Queue[T]) Take(ctx context.Context, match func(T) bool) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		for i, item := range q.items {
			if match == nil || match(item) {
				q.items = append(q.items[:i], q.items[i+1:]...)
				q.mu.Unlock()

				return item, nil
			}
		}
		if q.closed {
			q.mu.Unlock()

			return zero, ErrQueueClosed
		}
		signal := q.signal
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-signal:
		}
	}
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Close wakes up all consumers. Items already queued can still be taken.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
