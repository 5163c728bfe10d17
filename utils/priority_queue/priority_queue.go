package priority_queue

import (
	"container/heap"
	"sync"
)

// QueueItem is a wrapper around the item to be stored in the priority queue.
type QueueItem[T any] struct {
	Item     T
	Priority int
	index    int
	seq      uint64
}

// PriorityQueue is a thread-safe priority queue that wraps the heapQueue implementation.
// It is used to store items with a priority and retrieve them in the order of their
// priority. Items with equal priority come out in insertion order.
type PriorityQueue[T any] struct {
	queue *heapQueue[T]
	mutex sync.Mutex
}

// NewMaxPriorityQueue creates a max heap (higher priority values come first)
func NewMaxPriorityQueue[T any]() *PriorityQueue[T] {
	priorityQueue := &PriorityQueue[T]{
		queue: &heapQueue[T]{
			items: make([]*QueueItem[T], 0),
			less:  func(i, j int) bool { return i > j }, // max heap
		},
	}

	heap.Init(priorityQueue.queue)
	return priorityQueue
}

// NewMinPriorityQueue creates a min heap (lower priority values come first)
func NewMinPriorityQueue[T any]() *PriorityQueue[T] {
	priorityQueue := &PriorityQueue[T]{
		queue: &heapQueue[T]{
			items: make([]*QueueItem[T], 0),
			less:  func(i, j int) bool { return i < j }, // min heap
		},
	}

	heap.Init(priorityQueue.queue)
	return priorityQueue
}

// Push adds an item to the PriorityQueue and returns the new size
func (pq *PriorityQueue[T]) Push(item *QueueItem[T]) int {
	pq.mutex.Lock()
	defer pq.mutex.Unlock()
	heap.Push(pq.queue, item)
	return len(pq.queue.items)
}

// Pop removes and returns the item with the highest priority along with the
// remaining size. Popping an empty queue panics; use TryPop in drain loops
// where the queue may run dry between checks.
func (pq *PriorityQueue[T]) Pop() (T, int) {
	pq.mutex.Lock()
	defer pq.mutex.Unlock()
	item := heap.Pop(pq.queue).(*QueueItem[T])
	return item.Item, len(pq.queue.items)
}

// TryPop removes and returns the item with the highest priority, reporting
// false when the queue is empty
func (pq *PriorityQueue[T]) TryPop() (T, bool) {
	pq.mutex.Lock()
	defer pq.mutex.Unlock()
	if len(pq.queue.items) == 0 {
		var zero T
		return zero, false
	}
	item := heap.Pop(pq.queue).(*QueueItem[T])
	return item.Item, true
}

// Size returns the number of items in the priority queue
func (pq *PriorityQueue[T]) Size() int {
	pq.mutex.Lock()
	defer pq.mutex.Unlock()
	return len(pq.queue.items)
}

// GetSnapshot returns a copy of all items in the priority queue in the order
// they would be popped, without modifying the queue.
func (pq *PriorityQueue[T]) GetSnapshot() []T {
	pq.mutex.Lock()
	defer pq.mutex.Unlock()

	clone := &heapQueue[T]{
		items: make([]*QueueItem[T], len(pq.queue.items)),
		less:  pq.queue.less,
	}
	for i, item := range pq.queue.items {
		copied := *item
		clone.items[i] = &copied
	}

	// The copied slice already satisfies the heap invariant, so draining the
	// clone yields pop order without disturbing the live queue.
	items := make([]T, 0, len(clone.items))
	for clone.Len() > 0 {
		items = append(items, heap.Pop(clone).(*QueueItem[T]).Item)
	}
	return items
}
