// Package mpsc implements an unbounded lock-free queue for many producers and a single consumer.
package mpsc

import (
	"go.uber.org/atomic"
)

type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// Queue is a linked queue in the style of Vyukov's intrusive MPSC queue. Push may be called from any goroutine,
// Pop only from the single consumer. ForEach and Len are safe from any goroutine and give a best effort view.
type Queue[T any] struct {
	// head is the last consumed node (a stub initially), its successor is the next element to pop.
	head atomic.Pointer[node[T]]
	tail atomic.Pointer[node[T]]
	size atomic.Int64
}

// New creates an empty Queue.
func New[T any]() *Queue[T] {
	stub := new(node[T])

	q := new(Queue[T])
	q.head.Store(stub)
	q.tail.Store(stub)

	return q
}

// Push appends an element. It never blocks.
func (q *Queue[T]) Push(value T) {
	n := &node[T]{value: value}

	q.size.Inc()
	previous := q.tail.Swap(n)
	// between the swap and this store the consumer sees the queue as shorter than it is, never as corrupt
	previous.next.Store(n)
}

// Pop removes and returns the oldest element. It must only be called by the consumer.
func (q *Queue[T]) Pop() (value T, ok bool) {
	next := q.head.Load().next.Load()
	if next == nil {
		return value, false
	}

	q.head.Store(next)
	q.size.Dec()

	return next.value, true
}

// Peek returns the oldest element without removing it. It must only be called by the consumer.
func (q *Queue[T]) Peek() (value T, ok bool) {
	next := q.head.Load().next.Load()
	if next == nil {
		return value, false
	}

	return next.value, true
}

// ForEach calls consumer for the queued elements from oldest to newest until it returns false.
func (q *Queue[T]) ForEach(consumer func(value T) bool) {
	for current := q.head.Load().next.Load(); current != nil; current = current.next.Load() {
		if !consumer(current.value) {
			return
		}
	}
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	if size := q.size.Load(); size > 0 {
		return int(size)
	}

	return 0
}

// IsEmpty returns whether the consumer would currently get nothing from Pop.
func (q *Queue[T]) IsEmpty() bool {
	return q.head.Load().next.Load() == nil
}
