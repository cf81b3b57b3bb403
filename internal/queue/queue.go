// Package queue provides the FIFO used to hold sessions waiting for promotion.
package queue

// Queue defines a FIFO queue. Implementations are not safe for concurrent use,
// callers guard them with their own lock.
type Queue[T any] interface {
	// Enqueue adds an item to the tail of the queue.
	Enqueue(item T)
	// Dequeue removes and returns the item at the head of the queue.
	// ok is false when the queue is empty.
	Dequeue() (item T, ok bool)
	// Peek returns the item at the head of the queue without removing it.
	Peek() (item T, ok bool)
	// Remove deletes the first item for which match returns true.
	Remove(match func(T) bool) bool
	// Reset empties the queue.
	Reset()
	// IsEmpty returns true if the queue is empty.
	IsEmpty() bool
	// Length returns the number of items in the queue.
	Length() int
}
