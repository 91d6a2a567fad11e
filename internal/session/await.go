// File: internal/session/await.go
// Author: momentics <momentics@gmail.com>

package session

import (
	"context"
	"fmt"

	"github.com/momentics/fleetlink/api"
)

// Await runs exchange on the strand with a one-shot continuation pushed on
// top of the callback stack, then blocks until that continuation fires or ctx
// is done. exchange must terminate with exactly one PopAndInvoke.
//
// A Good outcome yields its Value as T. Error and CriticalError outcomes yield
// their error together with any value of type T they carry.
func Await[T any](ctx context.Context, s *Session, exchange func()) (T, error) {
	ch := make(chan Outcome, 1)
	s.Post(func() {
		s.Push(func(o Outcome) { ch <- o })
		if !s.IsShutdown() {
			exchange()
		}
	})

	var zero T
	select {
	case o := <-ch:
		v, _ := o.Value.(T)
		switch o.Status {
		case Good:
			if o.Value != nil {
				if _, ok := o.Value.(T); !ok {
					return zero, fmt.Errorf("session: outcome value %T is not %T", o.Value, zero)
				}
			}
			return v, nil
		default:
			if o.Err == nil {
				o.Err = api.ErrDisconnected
			}
			return v, o.Err
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
