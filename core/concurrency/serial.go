// File: core/concurrency/serial.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SerialQueue is a FIFO execution context: tasks submitted to it run one at
// a time, in submission order, on goroutines borrowed from a Target. It can
// be suspended and resumed; suspension takes effect after the task that is
// currently running.
//

package concurrency

import (
	"sync"

	"github.com/eapache/queue"
)

// drainBatch bounds how many tasks one borrowed goroutine runs before the
// queue yields it back to its target.
const drainBatch = 64

// Target runs queue drains. Executor implements it.
type Target interface {
	Submit(task TaskFunc) error
}

// GoTarget runs every submitted task on a fresh goroutine.
type GoTarget struct{}

// Submit starts task in a new goroutine.
func (GoTarget) Submit(task TaskFunc) error {
	go task()
	return nil
}

// SerialQueue serializes tasks.
type SerialQueue struct {
	label  string
	target Target

	mu        sync.Mutex
	tasks     *queue.Queue
	suspended int
	running   bool
	onPanic   func(any)
}

// NewSerialQueue creates an active queue. A nil target means GoTarget.
func NewSerialQueue(label string, target Target) *SerialQueue {
	if target == nil {
		target = GoTarget{}
	}
	return &SerialQueue{label: label, target: target, tasks: queue.New()}
}

// Label returns the queue's diagnostic name.
func (q *SerialQueue) Label() string { return q.label }

// SetPanicHandler installs fn to receive panics recovered from tasks.
func (q *SerialQueue) SetPanicHandler(fn func(any)) {
	q.mu.Lock()
	q.onPanic = fn
	q.mu.Unlock()
}

// Len returns the number of tasks not yet started.
func (q *SerialQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Length()
}

// Async appends task to the queue.
func (q *SerialQueue) Async(task TaskFunc) {
	q.mu.Lock()
	q.tasks.Add(task)
	start := q.startLocked()
	q.mu.Unlock()
	if start {
		q.schedule()
	}
}

// Sync appends task and waits for it to finish. Calling Sync from a task
// running on the same queue deadlocks.
func (q *SerialQueue) Sync(task TaskFunc) {
	done := make(chan struct{})
	q.Async(func() {
		defer close(done)
		task()
	})
	<-done
}

// Suspend stops the queue from starting new tasks. Calls nest.
func (q *SerialQueue) Suspend() {
	q.mu.Lock()
	q.suspended++
	q.mu.Unlock()
}

// Resume undoes one Suspend. Unbalanced calls are ignored.
func (q *SerialQueue) Resume() {
	q.mu.Lock()
	if q.suspended > 0 {
		q.suspended--
	}
	start := q.startLocked()
	q.mu.Unlock()
	if start {
		q.schedule()
	}
}

// Suspended reports whether the queue is currently suspended.
func (q *SerialQueue) Suspended() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.suspended > 0
}

func (q *SerialQueue) startLocked() bool {
	if q.running || q.suspended > 0 || q.tasks.Length() == 0 {
		return false
	}
	q.running = true
	return true
}

func (q *SerialQueue) schedule() {
	if err := q.target.Submit(q.drain); err != nil {
		go q.drain()
	}
}

func (q *SerialQueue) drain() {
	for i := 0; i < drainBatch; i++ {
		q.mu.Lock()
		if q.suspended > 0 || q.tasks.Length() == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		task := q.tasks.Remove().(TaskFunc)
		onPanic := q.onPanic
		q.mu.Unlock()
		runTask(task, onPanic)
	}
	q.schedule()
}

func runTask(task TaskFunc, onPanic func(any)) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(r)
		}
	}()
	task()
}
