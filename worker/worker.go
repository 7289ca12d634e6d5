// Package worker provides a small deferred-work scheduler. Work items are
// executed one after another on a queue's dedicated goroutine, so submitters
// never block and items on the same queue never run concurrently.
package worker

import (
	"sync"
	"time"
)

// A Queue runs submitted work items in order on one goroutine.
type Queue struct {
	name string

	mu     sync.Mutex
	cond   *sync.Cond
	items  []func()
	active bool
	closed bool
}

// NewQueue creates a queue and starts its goroutine.
func NewQueue(name string) *Queue {
	q := new(Queue)
	q.name = name
	q.cond = sync.NewCond(&q.mu)

	go q.run()

	return q
}

// Name returns the name of the queue.
func (q *Queue) Name() string {
	return q.name
}

// Submit appends a work item. It never blocks and is safe to call from an
// interrupt handler.
func (q *Queue) Submit(f func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.items = append(q.items, f)
	q.cond.Signal()
}

// Drain blocks until every item submitted before the call has finished.
func (q *Queue) Drain() {
	done := make(chan struct{})
	q.Submit(func() { close(done) })
	<-done
}

// Close stops the queue after the pending items finish.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *Queue) run() {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}

		if len(q.items) == 0 && q.closed {
			q.mu.Unlock()
			return
		}

		item := q.items[0]
		q.items = q.items[1:]
		q.active = true
		q.mu.Unlock()

		item()

		q.mu.Lock()
		q.active = false
		q.mu.Unlock()
	}
}

// Work is a one-shot work item that can be queued at most once at a time.
// Re-scheduling while it is still queued is a no-op, which makes schedulers
// on the interrupt path idempotent.
type Work struct {
	queue *Queue
	f     func()

	mu     sync.Mutex
	queued bool
}

// NewWork binds a function to a queue.
func NewWork(q *Queue, f func()) *Work {
	w := new(Work)
	w.queue = q
	w.f = f
	return w
}

// Schedule queues the work if it is not already queued. It reports whether
// the call actually queued it.
func (w *Work) Schedule() bool {
	w.mu.Lock()
	if w.queued {
		w.mu.Unlock()
		return false
	}
	w.queued = true
	w.mu.Unlock()

	w.queue.Submit(func() {
		w.mu.Lock()
		w.queued = false
		w.mu.Unlock()

		w.f()
	})

	return true
}

// Pending reports whether the work is queued and has not started yet.
func (w *Work) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queued
}

// DelayedWork runs a function on a queue after a delay, unless it is
// cancelled before the delay expires.
type DelayedWork struct {
	queue *Queue
	f     func()

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
}

// NewDelayedWork binds a function to a queue.
func NewDelayedWork(q *Queue, f func()) *DelayedWork {
	w := new(DelayedWork)
	w.queue = q
	w.f = f
	return w
}

// Schedule arms the delay if the work is not already armed or queued. It
// reports whether the call armed it.
func (w *DelayedWork) Schedule(d time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending {
		return false
	}

	w.pending = true
	w.timer = time.AfterFunc(d, w.expire)

	return true
}

func (w *DelayedWork) expire() {
	w.mu.Lock()
	if !w.pending {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.mu.Unlock()

	w.queue.Submit(w.f)
}

// Cancel disarms the delay if the work has not been handed to the queue yet.
// It reports whether it was disarmed. Cancelling work that already ran, or
// was never scheduled, is a safe no-op.
func (w *DelayedWork) Cancel() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.pending {
		return false
	}

	w.pending = false
	w.timer.Stop()

	return true
}

// Pending reports whether the delay is armed.
func (w *DelayedWork) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}
