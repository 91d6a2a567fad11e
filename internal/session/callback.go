// File: internal/session/callback.go
// Author: momentics <momentics@gmail.com>

package session

import (
	"fmt"

	"github.com/momentics/fleetlink/api"
)

// Status is the terminal result class of an exchange.
type Status int

const (
	Good Status = iota
	Error
	CriticalError
)

func (s Status) String() string {
	switch s {
	case Good:
		return "good"
	case Error:
		return "error"
	case CriticalError:
		return "critical-error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is delivered to a continuation when an exchange terminates.
type Outcome struct {
	Status Status
	Value  any
	Err    error
}

// Ok returns a Good outcome carrying v.
func Ok(v any) Outcome { return Outcome{Status: Good, Value: v} }

// Failed returns an Error outcome. The exchange failed but the session is usable.
func Failed(err error) Outcome { return Outcome{Status: Error, Err: err} }

// FailedWith returns an Error outcome that still carries a value, such as a result code.
func FailedWith(v any, err error) Outcome { return Outcome{Status: Error, Value: v, Err: err} }

// Critical returns a CriticalError outcome.
func Critical(err error) Outcome { return Outcome{Status: CriticalError, Err: err} }

// Disconnected is the outcome synthesized for continuations still pending at shutdown.
func Disconnected() Outcome { return Critical(api.ErrDisconnected) }

// Continuation consumes the outcome of one exchange.
type Continuation func(Outcome)

// CallbackStack is a LIFO of pending exchange continuations.
// It is not safe for concurrent use; a Session only touches it from its strand.
type CallbackStack struct {
	entries []Continuation
	sealed  bool
}

// Push adds c on top. It returns false once the stack has been drained for good.
func (cs *CallbackStack) Push(c Continuation) bool {
	if cs.sealed {
		return false
	}
	cs.entries = append(cs.entries, c)
	return true
}

// PopAndInvoke removes the top entry and calls it with o.
// The entry is removed before the call so it may push a nested exchange.
func (cs *CallbackStack) PopAndInvoke(o Outcome) bool {
	n := len(cs.entries)
	if n == 0 {
		return false
	}
	c := cs.entries[n-1]
	cs.entries[n-1] = nil
	cs.entries = cs.entries[:n-1]
	c(o)
	return true
}

// Len returns the number of pending continuations.
func (cs *CallbackStack) Len() int { return len(cs.entries) }

// Drain pops every entry, including ones pushed while draining, and seals the stack.
func (cs *CallbackStack) Drain(o Outcome) int {
	n := 0
	for cs.PopAndInvoke(o) {
		n++
	}
	cs.sealed = true
	return n
}
