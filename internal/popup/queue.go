package popup

import (
	"container/list"
	"sync"
)

// Queue is a FIFO of pending requests.
// Push is safe from any goroutine; the orchestrator's consumer goroutine is the
// only caller of Peek and Pop.
type Queue struct {
	mu    sync.Mutex
	items *list.List // of *Request
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{items: list.New()}
}

// Push appends a request to the tail.
func (q *Queue) Push(r *Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.PushBack(r)
}

// Peek returns the head without removing it, or nil if the queue is empty.
func (q *Queue) Peek() *Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	elem := q.items.Front()
	if elem == nil {
		return nil
	}
	return elem.Value.(*Request)
}

// Pop removes and returns the head, or nil if the queue is empty.
func (q *Queue) Pop() *Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	elem := q.items.Front()
	if elem == nil {
		return nil
	}
	q.items.Remove(elem)
	return elem.Value.(*Request)
}

// Len returns the number of pending requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
