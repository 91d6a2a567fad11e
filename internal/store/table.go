// File: internal/store/table.go
// Package store provides keyed record tables with server-assigned ids.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Two strategies share one contract. SlotTable is a fixed array of slots,
// each behind its own RWMutex, so accesses to different ids never contend.
// SerialTable funnels every operation through one strand and grows freely.
// Ids are allocated monotonically from 1; 0 is never handed out.

package store

import "github.com/momentics/fleetlink/api"

// Table is a keyed collection of records of type T.
type Table[T any] interface {
	// CreateAndAdd installs rec under a fresh id. It returns api.NoID when
	// the table is exhausted.
	CreateAndAdd(rec T) api.ID
	// Add installs rec under a caller-chosen id. It fails if the id is live
	// or out of range.
	Add(id api.ID, rec T) bool
	// AccessRead calls fn with the record or nil. fn must not mutate it.
	AccessRead(id api.ID, fn func(*T))
	// AccessWrite calls fn with the record or nil under exclusive access.
	AccessWrite(id api.ID, fn func(*T))
	// Remove erases the record, reporting whether it existed.
	Remove(id api.ID) bool
	// Range visits live records until fn returns false.
	Range(fn func(api.ID, *T) bool)
	Len() int
}
