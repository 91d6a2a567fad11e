// File: internal/store/slot.go
// Author: momentics <momentics@gmail.com>

package store

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/fleetlink/api"
)

type slot[T any] struct {
	mu   sync.RWMutex
	live bool
	rec  T
}

// SlotTable is a fixed-capacity table with per-slot locking.
type SlotTable[T any] struct {
	slots  []slot[T]
	cursor atomic.Uint32
	count  atomic.Int64
}

var _ Table[struct{}] = (*SlotTable[struct{}])(nil)

// NewSlotTable returns a table holding ids 1..capacity.
func NewSlotTable[T any](capacity int) *SlotTable[T] {
	if capacity <= 0 {
		capacity = 1024
	}
	return &SlotTable[T]{slots: make([]slot[T], capacity)}
}

// Cap returns the number of slots.
func (t *SlotTable[T]) Cap() int { return len(t.slots) }

func (t *SlotTable[T]) slot(id api.ID) *slot[T] {
	if id == api.NoID || int(id) > len(t.slots) {
		return nil
	}
	return &t.slots[id-1]
}

func (t *SlotTable[T]) CreateAndAdd(rec T) api.ID {
	for {
		next := t.cursor.Load()
		if int(next) >= len(t.slots) {
			return api.NoID
		}
		if !t.cursor.CompareAndSwap(next, next+1) {
			continue
		}
		id := api.ID(next + 1)
		s := t.slot(id)
		s.mu.Lock()
		if s.live {
			// taken through Add; move on
			s.mu.Unlock()
			continue
		}
		s.live = true
		s.rec = rec
		s.mu.Unlock()
		t.count.Add(1)
		return id
	}
}

func (t *SlotTable[T]) Add(id api.ID, rec T) bool {
	s := t.slot(id)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live {
		return false
	}
	s.live = true
	s.rec = rec
	t.count.Add(1)
	return true
}

func (t *SlotTable[T]) AccessRead(id api.ID, fn func(*T)) {
	s := t.slot(id)
	if s == nil {
		fn(nil)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.live {
		fn(nil)
		return
	}
	fn(&s.rec)
}

func (t *SlotTable[T]) AccessWrite(id api.ID, fn func(*T)) {
	s := t.slot(id)
	if s == nil {
		fn(nil)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		fn(nil)
		return
	}
	fn(&s.rec)
}

func (t *SlotTable[T]) Remove(id api.ID) bool {
	s := t.slot(id)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return false
	}
	var zero T
	s.live = false
	s.rec = zero
	t.count.Add(-1)
	return true
}

// Range visits slots in id order, holding each slot's read lock only while fn runs.
func (t *SlotTable[T]) Range(fn func(api.ID, *T) bool) {
	for i := range t.slots {
		s := &t.slots[i]
		s.mu.RLock()
		cont := true
		if s.live {
			cont = fn(api.ID(i+1), &s.rec)
		}
		s.mu.RUnlock()
		if !cont {
			return
		}
	}
}

func (t *SlotTable[T]) Len() int { return int(t.count.Load()) }
