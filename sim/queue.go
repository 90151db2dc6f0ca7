package sim

import "fmt"

// Hook positions of a Queue. The item is the element pushed or popped.
var (
	HookPosQueuePush = &HookPos{Name: "Queue Push"}
	HookPosQueuePop  = &HookPos{Name: "Queue Pop"}
)

// A Buffer is a bounded queue whose occupancy can be inspected without
// knowing what it holds.
type Buffer interface {
	Named
	Hookable

	Capacity() int
	Size() int

	// HighWater returns the largest size the queue has reached.
	HighWater() int
}

// A Queue is a bounded FIFO that sits between the two sides of a handshake.
// The accepting side keeps its ready signal high only while Ready returns
// true, so a queue never holds more than its capacity. Pushing into a full
// queue is a modelling error and panics.
type Queue[T any] struct {
	HookableBase

	name      string
	capacity  int
	items     []T
	highWater int
}

// NewQueue creates an empty queue that holds up to capacity elements.
func NewQueue[T any](name string, capacity int) *Queue[T] {
	NameMustBeValid(name)

	if capacity <= 0 {
		panic(fmt.Sprintf("queue %s: capacity must be positive", name))
	}

	return &Queue[T]{
		name:     name,
		capacity: capacity,
		items:    make([]T, 0, capacity),
	}
}

// Name returns the name of the queue.
func (q *Queue[T]) Name() string {
	return q.name
}

// Capacity returns the number of elements the queue can hold.
func (q *Queue[T]) Capacity() int {
	return q.capacity
}

// Size returns the number of queued elements.
func (q *Queue[T]) Size() int {
	return len(q.items)
}

// HighWater returns the largest size the queue has reached.
func (q *Queue[T]) HighWater() int {
	return q.highWater
}

// Ready tells if the queue can accept one more element.
func (q *Queue[T]) Ready() bool {
	return len(q.items) < q.capacity
}

// Empty tells if nothing is queued.
func (q *Queue[T]) Empty() bool {
	return len(q.items) == 0
}

// Push appends v to the tail.
func (q *Queue[T]) Push(v T) {
	if !q.Ready() {
		panic(fmt.Sprintf("queue %s overflow, capacity %d", q.name, q.capacity))
	}

	q.items = append(q.items, v)
	if len(q.items) > q.highWater {
		q.highWater = len(q.items)
	}

	if q.NumHooks() > 0 {
		q.InvokeHook(HookCtx{Domain: q, Pos: HookPosQueuePush, Item: v})
	}
}

// Head returns the oldest element without removing it.
func (q *Queue[T]) Head() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	return q.items[0], true
}

// Pop removes and returns the oldest element.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T

	if len(q.items) == 0 {
		return zero, false
	}

	v := q.items[0]
	copy(q.items, q.items[1:])
	q.items[len(q.items)-1] = zero
	q.items = q.items[:len(q.items)-1]

	if q.NumHooks() > 0 {
		q.InvokeHook(HookCtx{Domain: q, Pos: HookPosQueuePop, Item: v})
	}

	return v, true
}
