// File: internal/concurrency/executor.go
// Package concurrency implements the reactor worker pool and strands.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches completion tasks across a fixed set of worker goroutines.
// Submit never blocks: when the shared queue is full the task runs on its own
// goroutine, so a completion can never be dropped by back-pressure. Every task
// accepted by Submit has finished when Close returns.

package concurrency

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrExecutorClosed is returned by Submit after Close.
var ErrExecutorClosed = errors.New("executor is closed")

// TaskFunc is a unit of work to execute.
type TaskFunc func()

// Runner accepts tasks for asynchronous execution.
type Runner interface {
	Submit(task TaskFunc) error
}

// Executor manages a pool of worker goroutines.
type Executor struct {
	queue   chan TaskFunc
	closeCh chan struct{}
	mu      sync.RWMutex // orders Submit against Close
	closed  bool
	wg      sync.WaitGroup
	logger  *zap.Logger

	numWorkers int

	// statistics
	totalTasks     atomic.Int64
	completedTasks atomic.Int64
	overflowTasks  atomic.Int64
	panics         atomic.Int64
}

// NewExecutor creates an Executor with numWorkers goroutines.
// If numWorkers <= 0, defaults to runtime.NumCPU().
func NewExecutor(numWorkers int, logger *zap.Logger) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		queue:      make(chan TaskFunc, numWorkers*256),
		closeCh:    make(chan struct{}),
		logger:     logger,
		numWorkers: numWorkers,
	}
	e.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go e.run()
	}
	return e
}

// Submit enqueues a task for execution, returning ErrExecutorClosed if executor is closed.
func (e *Executor) Submit(task TaskFunc) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrExecutorClosed
	}
	e.totalTasks.Add(1)
	select {
	case e.queue <- task:
	default:
		e.overflowTasks.Add(1)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.execute(task)
		}()
	}
	return nil
}

// Close stops accepting tasks, runs what is queued and waits for workers to exit.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.closeCh)
	e.mu.Unlock()
	e.wg.Wait()
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	total := e.totalTasks.Load()
	done := e.completedTasks.Load()
	return map[string]int64{
		"total_tasks":     total,
		"completed_tasks": done,
		"pending_tasks":   total - done,
		"overflow_tasks":  e.overflowTasks.Load(),
		"panics":          e.panics.Load(),
		"num_workers":     int64(e.numWorkers),
	}
}

func (e *Executor) run() {
	defer e.wg.Done()
	for {
		select {
		case task := <-e.queue:
			e.execute(task)
		case <-e.closeCh:
			// drain what was accepted before Close
			for {
				select {
				case task := <-e.queue:
					e.execute(task)
				default:
					return
				}
			}
		}
	}
}

// execute runs the task and updates statistics, recovering from panics.
func (e *Executor) execute(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.logger.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
		e.completedTasks.Add(1)
	}()
	task()
}
