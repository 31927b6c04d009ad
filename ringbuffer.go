/*
@Author: Lzww
@LastEditTime: 2025-10-12 20:41:07
@Description: Ring Buffer for timing samples and trace records
@Language: Go 1.23.4
*/

package wavelimiter

// RingBuffer is a generic circular buffer holding elements in FIFO order.
// An unbounded buffer grows when it becomes full. A bounded buffer (limit > 0)
// never grows past its limit and overwrites the oldest element instead, so a
// bounded buffer never allocates after construction.
type RingBuffer[T any] struct {
	buffer []T // underlying array, one slot is kept free to tell empty from full
	head   int // index of the first element
	tail   int // index where the next element will be inserted
	limit  int // maximum number of elements, 0 means unbounded
}

// NewRingBuffer creates an unbounded ring buffer with room for capacity
// elements before the first growth
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{buffer: make([]T, capacity+1)}
}

// NewBoundedRingBuffer creates a ring buffer that keeps at most limit elements
func NewBoundedRingBuffer[T any](limit int) *RingBuffer[T] {
	if limit < 1 {
		limit = 1
	}
	return &RingBuffer[T]{buffer: make([]T, limit+1), limit: limit}
}

// Empty returns true if the ring buffer contains no elements
func (rb *RingBuffer[T]) Empty() bool {
	return rb.head == rb.tail
}

// Full returns true if the ring buffer is at its current capacity
func (rb *RingBuffer[T]) Full() bool {
	return (rb.tail+1)%len(rb.buffer) == rb.head
}

// MaxLen returns the number of elements the buffer holds before it grows
// (unbounded) or starts overwriting (bounded)
func (rb *RingBuffer[T]) MaxLen() int {
	return len(rb.buffer) - 1
}

// Push adds a new element to the tail of the ring buffer.
// Returns false when a bounded buffer had to drop its oldest element.
func (rb *RingBuffer[T]) Push(value T) bool {
	kept := true
	if rb.Full() {
		if rb.limit > 0 {
			rb.Discard(1)
			kept = false
		} else {
			rb.grow()
		}
	}
	rb.buffer[rb.tail] = value
	rb.tail = (rb.tail + 1) % len(rb.buffer)
	return kept
}

// Pop removes and returns the element at the head of the ring buffer
func (rb *RingBuffer[T]) Pop() (T, bool) {
	var zero T
	if rb.Empty() {
		return zero, false
	}
	value := rb.buffer[rb.head]
	rb.buffer[rb.head] = zero
	rb.head = (rb.head + 1) % len(rb.buffer)
	return value, true
}

// Peek returns a pointer to the element at the head without removing it
func (rb *RingBuffer[T]) Peek() (*T, bool) {
	if rb.Empty() {
		return nil, false
	}
	return &rb.buffer[rb.head], true
}

// Len returns the current number of elements in the ring buffer
func (rb *RingBuffer[T]) Len() int {
	if rb.tail >= rb.head {
		return rb.tail - rb.head
	}
	return len(rb.buffer) - rb.head + rb.tail
}

// ForEach iterates from head to tail. If fn returns false, iteration stops.
func (rb *RingBuffer[T]) ForEach(fn func(*T) bool) {
	if rb.Empty() {
		return
	}

	if rb.head < rb.tail {
		for i := rb.head; i < rb.tail; i++ {
			if !fn(&rb.buffer[i]) {
				return
			}
		}
		return
	}

	// wraparound: head to end, then start to tail
	for i := rb.head; i < len(rb.buffer); i++ {
		if !fn(&rb.buffer[i]) {
			return
		}
	}
	for i := 0; i < rb.tail; i++ {
		if !fn(&rb.buffer[i]) {
			return
		}
	}
}

// Discard removes the first n elements and returns how many were removed
func (rb *RingBuffer[T]) Discard(n int) int {
	if n <= 0 || rb.Empty() {
		return 0
	}

	if n >= rb.Len() {
		n = rb.Len()
	}

	var zero T
	for i := 0; i < n; i++ {
		rb.buffer[rb.head] = zero
		rb.head = (rb.head + 1) % len(rb.buffer)
	}
	return n
}

// Reset drops every element but keeps the allocated storage
func (rb *RingBuffer[T]) Reset() {
	rb.Discard(rb.Len())
	rb.head, rb.tail = 0, 0
}

// grow increases the capacity by ~10% (at least 2 slots) and compacts the
// elements to the start of the new array
func (rb *RingBuffer[T]) grow() {
	currentLen := rb.Len()
	newCapacity := currentLen + (currentLen+9)/10 + 1
	if newCapacity < currentLen+2 {
		newCapacity = currentLen + 2
	}
	newBuffer := make([]T, newCapacity+1)

	index := 0
	rb.ForEach(func(item *T) bool {
		newBuffer[index] = *item
		index++
		return true
	})

	rb.buffer = newBuffer
	rb.head = 0
	rb.tail = currentLen
}
