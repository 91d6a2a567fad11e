// File: internal/concurrency/strand.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/zap"
)

// strandBatch caps how many tasks one drain runs before yielding its worker.
const strandBatch = 64

// Strand is a FIFO serialization point: tasks posted to it run one at a time,
// in post order, never concurrently with each other.
//
// A strand backed by an Executor shares the reactor workers. A strand with a
// nil Runner drains on its own goroutine, which makes it safe to block on from
// reactor workers (see Do).
type Strand struct {
	mu      sync.Mutex
	tasks   *queue.Queue
	running bool
	runner  Runner
	logger  *zap.Logger
}

// NewStrand returns a strand draining on r, or on a dedicated goroutine when r is nil.
func NewStrand(r Runner, logger *zap.Logger) *Strand {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strand{tasks: queue.New(), runner: r, logger: logger}
}

// Post appends task to the strand.
func (s *Strand) Post(task TaskFunc) {
	s.mu.Lock()
	s.tasks.Add(task)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	s.dispatch()
}

// Do posts fn and waits for it to finish. It must not be called from a task
// running on the same strand.
func (s *Strand) Do(fn func()) {
	done := make(chan struct{})
	s.Post(func() {
		defer close(done)
		fn()
	})
	<-done
}

// Pending returns the number of queued tasks.
func (s *Strand) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Length()
}

func (s *Strand) dispatch() {
	if s.runner != nil && s.runner.Submit(s.drain) == nil {
		return
	}
	go s.drain()
}

func (s *Strand) drain() {
	for i := 0; i < strandBatch; i++ {
		s.mu.Lock()
		if s.tasks.Length() == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		task := s.tasks.Remove().(TaskFunc)
		s.mu.Unlock()
		s.execute(task)
	}
	// more work is pending; requeue so other strands get the worker
	s.dispatch()
}

func (s *Strand) execute(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("strand task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	task()
}
