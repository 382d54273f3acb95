package nntp

import (
	"sync"
)

// the single shared structure between a task scheduler and the pool of
// connections, fifo, waitable alongside the other connection signals
// through the notify channel
type CmdQueue struct {
	mu     sync.Mutex
	items  []*CmdList
	notify chan struct{}
}

func NewCmdQueue() *CmdQueue {
	return &CmdQueue{
		notify: make(chan struct{}, 1),
	}
}

// append a cmdlist and wake one waiting connection
func (q *CmdQueue) Enqueue(cl *CmdList) {
	q.mu.Lock()
	q.items = append(q.items, cl)
	q.mu.Unlock()
	q.wake()
}

// take the next cmdlist off the queue, nil when empty
// a woken connection that loses the race simply waits again
func (q *CmdQueue) TryDequeue() *CmdList {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	cl := q.items[0]
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.wake()
	}
	return cl
}

// channel yielding a wake up whenever the queue may be non empty
// selectable next to the cancel and shutdown channels
func (q *CmdQueue) Wait() <-chan struct{} {
	return q.notify
}

func (q *CmdQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *CmdQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
