// File: core/concurrency/executor.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks across a resizable pool of worker goroutines
// fed from one bounded queue. Submit never blocks: a full queue is reported
// as ErrExecutorBusy so callers on latency-sensitive paths can fall back.
//

package concurrency

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// TaskFunc is a unit of work.
type TaskFunc func()

// Executor manages a pool of worker goroutines.
type Executor struct {
	globalQueue   chan TaskFunc
	workers       []*worker
	closeCh       chan struct{}
	closed        atomic.Bool
	resizeRequest chan int
	mu            sync.Mutex
	wg            sync.WaitGroup

	pin       bool
	pinErrors atomic.Int64

	// PanicHandler, if set before the first Submit, receives recovered
	// task panics.
	PanicHandler func(any)
}

// ExecutorOption configures an Executor at construction.
type ExecutorOption func(*Executor)

// WithPinnedWorkers locks each worker to its own OS thread bound to CPU
// id mod NumCPU.
func WithPinnedWorkers() ExecutorOption {
	return func(e *Executor) { e.pin = true }
}

// NewExecutor creates a new Executor with numWorkers workers and a queue
// of queueDepth pending tasks. Non-positive values pick defaults.
func NewExecutor(numWorkers, queueDepth int, opts ...ExecutorOption) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if queueDepth <= 0 {
		queueDepth = numWorkers * 256
	}
	e := &Executor{
		globalQueue:   make(chan TaskFunc, queueDepth),
		closeCh:       make(chan struct{}),
		resizeRequest: make(chan int),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.workers = make([]*worker, 0, numWorkers)
	for i := 0; i < numWorkers; i++ {
		e.spawnLocked(i)
	}
	go e.manageResizes()
	return e
}

func (e *Executor) spawnLocked(id int) {
	w := &worker{id: id, executor: e, stopCh: make(chan struct{}), stoppedCh: make(chan struct{})}
	e.workers = append(e.workers, w)
	e.wg.Add(1)
	go w.run(&e.wg)
}

// Submit enqueues a task without blocking.
func (e *Executor) Submit(task TaskFunc) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	select {
	case e.globalQueue <- task:
		return nil
	case <-e.closeCh:
		return ErrExecutorClosed
	default:
		return ErrExecutorBusy
	}
}

// Resize dynamically scales the worker pool.
func (e *Executor) Resize(newCount int) error {
	if newCount <= 0 {
		return fmt.Errorf("resize to %d: %w", newCount, ErrInvalidWorkerCount)
	}
	select {
	case e.resizeRequest <- newCount:
		return nil
	case <-e.closeCh:
		return ErrExecutorClosed
	}
}

// manageResizes applies resize requests; removed workers are waited for
// before the slice is truncated.
func (e *Executor) manageResizes() {
	for {
		var newCount int
		select {
		case newCount = <-e.resizeRequest:
		case <-e.closeCh:
			return
		}
		e.mu.Lock()
		current := len(e.workers)
		if newCount > current {
			for i := current; i < newCount; i++ {
				e.spawnLocked(i)
			}
		} else if newCount < current {
			for i := newCount; i < current; i++ {
				close(e.workers[i].stopCh)
			}
			for i := newCount; i < current; i++ {
				<-e.workers[i].stoppedCh
			}
			e.workers = e.workers[:newCount]
		}
		e.mu.Unlock()
	}
}

// Close shuts down the executor, waiting for workers to finish. Tasks still
// queued are run on the calling goroutine so nothing submitted is lost.
func (e *Executor) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	close(e.closeCh)
	e.mu.Lock()
	for _, w := range e.workers {
		close(w.stopCh)
	}
	e.mu.Unlock()
	e.wg.Wait()
	for {
		select {
		case task := <-e.globalQueue:
			e.safeExecute(task)
		default:
			return
		}
	}
}

// NumWorkers returns active worker count.
func (e *Executor) NumWorkers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.workers)
}

// PinErrors counts workers that could not be bound to their CPU.
func (e *Executor) PinErrors() int64 {
	return e.pinErrors.Load()
}

// Pending returns the number of queued tasks.
func (e *Executor) Pending() int {
	return len(e.globalQueue)
}

func (e *Executor) safeExecute(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil && e.PanicHandler != nil {
			e.PanicHandler(r)
		}
	}()
	task()
}

// worker runs tasks and signals stoppedCh once fully exited.
type worker struct {
	id        int
	executor  *Executor
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer func() {
		wg.Done()
		close(w.stoppedCh)
	}()
	if w.executor.pin {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := PinCurrentThread(w.id % runtime.NumCPU()); err != nil {
			w.executor.pinErrors.Add(1)
		}
	}
	for {
		select {
		case <-w.stopCh:
			return
		case task := <-w.executor.globalQueue:
			w.executor.safeExecute(task)
		}
	}
}
