// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package queue provides an unbounded multi-producer FIFO with a blocking
// consumer side.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Push after Close.
var ErrClosed = errors.New("queue: closed")

// compactThreshold is the consumed-prefix length after which the backing
// slice is compacted.
const compactThreshold = 1024

// Queue is an unbounded FIFO. Push never blocks; Pop blocks while the queue
// is empty and open. After Close, Pop drains the remaining items and then
// reports false.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool
	signal chan struct{}
}

// New returns an empty, open queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{signal: make(chan struct{}, 1)}
}

// Push appends v. It fails with ErrClosed once the queue is closed.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.wake()
	return nil
}

// PushAndClose appends a final item and closes the queue atomically, so no
// other producer can enqueue behind it.
func (q *Queue[T]) PushAndClose(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, v)
	q.closed = true
	q.mu.Unlock()
	q.wake()
	return nil
}

// Close stops accepting items. It reports false if the queue was already closed.
func (q *Queue[T]) Close() bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.closed = true
	q.mu.Unlock()
	q.wake()
	return true
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Pop removes the oldest item, blocking until one is available. It returns
// false when the queue is closed and drained.
func (q *Queue[T]) Pop() (T, bool) {
	v, ok, _ := q.PopContext(context.Background())
	return v, ok
}

// PopContext is Pop with cancellation. The error is ctx.Err() when ctx ends first.
func (q *Queue[T]) PopContext(ctx context.Context) (T, bool, error) {
	for {
		q.mu.Lock()
		if q.head < len(q.items) {
			v := q.items[q.head]
			var zero T
			q.items[q.head] = zero
			q.head++
			switch {
			case q.head == len(q.items):
				q.items = q.items[:0]
				q.head = 0
			case q.head >= compactThreshold && q.head*2 >= len(q.items):
				n := copy(q.items, q.items[q.head:])
				clear(q.items[n:])
				q.items = q.items[:n]
				q.head = 0
			}
			more := q.head < len(q.items) || q.closed
			q.mu.Unlock()
			if more {
				q.wake()
			}
			return v, true, nil
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, false, nil
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			var zero T
			return zero, false, ctx.Err()
		}
	}
}

// Drain removes and returns all queued items without blocking.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := append([]T(nil), q.items[q.head:]...)
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
	return out
}

func (q *Queue[T]) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
