// File: internal/store/serial.go
// Author: momentics <momentics@gmail.com>

package store

import (
	"math"

	"go.uber.org/zap"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/internal/concurrency"
)

// SerialTable is a dynamic table whose operations all run on one strand.
// Callers block until their operation has run.
type SerialTable[T any] struct {
	strand  *concurrency.Strand
	records map[api.ID]*T
	next    api.ID
}

var _ Table[struct{}] = (*SerialTable[struct{}])(nil)

// NewSerialTable returns an empty table with its own strand.
func NewSerialTable[T any](logger *zap.Logger) *SerialTable[T] {
	return &SerialTable[T]{
		strand:  concurrency.NewStrand(nil, logger),
		records: make(map[api.ID]*T),
	}
}

// Exec runs fn on the table strand. Multi-step operations that must appear
// atomic go through Exec. fn must not call back into the table's own methods.
func (t *SerialTable[T]) Exec(fn func(tx *Txn[T])) {
	t.strand.Do(func() { fn(&Txn[T]{t: t}) })
}

func (t *SerialTable[T]) CreateAndAdd(rec T) (id api.ID) {
	t.Exec(func(tx *Txn[T]) { id = tx.Create(rec) })
	return id
}

func (t *SerialTable[T]) Add(id api.ID, rec T) (ok bool) {
	t.Exec(func(tx *Txn[T]) { ok = tx.Put(id, rec) })
	return ok
}

func (t *SerialTable[T]) AccessRead(id api.ID, fn func(*T)) {
	t.Exec(func(tx *Txn[T]) { fn(tx.Get(id)) })
}

func (t *SerialTable[T]) AccessWrite(id api.ID, fn func(*T)) {
	t.Exec(func(tx *Txn[T]) { fn(tx.Get(id)) })
}

func (t *SerialTable[T]) Remove(id api.ID) (ok bool) {
	t.Exec(func(tx *Txn[T]) { ok = tx.Delete(id) })
	return ok
}

func (t *SerialTable[T]) Range(fn func(api.ID, *T) bool) {
	t.Exec(func(tx *Txn[T]) { tx.Range(fn) })
}

func (t *SerialTable[T]) Len() (n int) {
	t.Exec(func(tx *Txn[T]) { n = tx.Len() })
	return n
}

// Txn is the view of a SerialTable inside Exec.
type Txn[T any] struct {
	t *SerialTable[T]
}

// Create installs rec under the next free id, or returns api.NoID once the
// id space is exhausted.
func (tx *Txn[T]) Create(rec T) api.ID {
	t := tx.t
	for t.next < math.MaxUint32 {
		t.next++
		if _, taken := t.records[t.next]; taken {
			continue
		}
		r := rec
		t.records[t.next] = &r
		return t.next
	}
	return api.NoID
}

// Put installs rec under id unless the id is live or NoID.
func (tx *Txn[T]) Put(id api.ID, rec T) bool {
	if id == api.NoID {
		return false
	}
	if _, taken := tx.t.records[id]; taken {
		return false
	}
	r := rec
	tx.t.records[id] = &r
	return true
}

// Get returns the record or nil.
func (tx *Txn[T]) Get(id api.ID) *T {
	return tx.t.records[id]
}

func (tx *Txn[T]) Delete(id api.ID) bool {
	if _, ok := tx.t.records[id]; !ok {
		return false
	}
	delete(tx.t.records, id)
	return true
}

func (tx *Txn[T]) Range(fn func(api.ID, *T) bool) {
	for id, rec := range tx.t.records {
		if !fn(id, rec) {
			return
		}
	}
}

func (tx *Txn[T]) Len() int { return len(tx.t.records) }
