package events

import "sync"

// Queue is a ring-buffer FIFO that doubles its capacity once it is 70%
// full, so Push never blocks and never drops.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int
	size   int
	closed bool

	pushed  int64
	popped  int64
	resizes int
}

// Stats is a point-in-time view of a Queue.
type Stats struct {
	Len      int   `json:"len"`
	Capacity int   `json:"capacity"`
	Pushed   int64 `json:"pushed"`
	Popped   int64 `json:"popped"`
	Resizes  int   `json:"resizes"`
}

// NewQueue creates a queue with the given initial capacity (minimum 1).
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue[T]{ring: make([]T, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item. It returns false once the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := max(len(q.ring)*70/100, 1)
	if q.size+1 >= threshold {
		q.growLocked()
	}

	q.ring[(q.head+q.size)%len(q.ring)] = item
	q.size++
	q.pushed++
	q.cond.Signal()
	return true
}

// Pop removes the oldest item, blocking until one is available. It returns
// false when the queue is closed and drained.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size == 0 && !q.closed {
		q.cond.Wait()
	}
	return q.popLocked()
}

// TryPop removes the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Drain removes up to n items (all when n <= 0).
func (q *Queue[T]) Drain(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || n > q.size {
		n = q.size
	}
	if n == 0 {
		return nil
	}

	out := make([]T, 0, n)
	for range n {
		item, _ := q.popLocked()
		out = append(out, item)
	}
	return out
}

// Consume calls fn for every item in order until the queue is closed and
// drained.
func (q *Queue[T]) Consume(fn func(T)) {
	for {
		item, ok := q.Pop()
		if !ok {
			return
		}
		fn(item)
	}
}

// Close stops accepting items and wakes blocked consumers. Items already
// queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:      q.size,
		Capacity: len(q.ring),
		Pushed:   q.pushed,
		Popped:   q.popped,
		Resizes:  q.resizes,
	}
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if q.size == 0 {
		return zero, false
	}

	item := q.ring[q.head]
	q.ring[q.head] = zero
	q.head = (q.head + 1) % len(q.ring)
	q.size--
	q.popped++
	return item, true
}

// growLocked doubles the ring and unwraps it so head is at 0.
func (q *Queue[T]) growLocked() {
	next := make([]T, len(q.ring)*2)
	for i := range q.size {
		next[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	q.ring = next
	q.head = 0
	q.resizes++
}
