// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Reload hooks run when the operator asks the server to re-read its inputs
// (SIGHUP in the serve command).

package control

import (
	"errors"
	"sync"
)

// Reloader is a list of named reload hooks.
type Reloader struct {
	mu    sync.Mutex
	hooks []reloadHook
}

type reloadHook struct {
	name string
	fn   func() error
}

// Register adds a hook. Hooks run in registration order.
func (r *Reloader) Register(name string, fn func() error) {
	r.mu.Lock()
	r.hooks = append(r.hooks, reloadHook{name: name, fn: fn})
	r.mu.Unlock()
}

// Trigger runs every hook and joins their errors, each prefixed by its hook name.
func (r *Reloader) Trigger() error {
	r.mu.Lock()
	hooks := append([]reloadHook(nil), r.hooks...)
	r.mu.Unlock()

	var errs []error
	for _, h := range hooks {
		if err := h.fn(); err != nil {
			errs = append(errs, &HookError{Name: h.name, Err: err})
		}
	}
	return errors.Join(errs...)
}

// HookError is the failure of one reload hook.
type HookError struct {
	Name string
	Err  error
}

func (e *HookError) Error() string { return e.Name + ": " + e.Err.Error() }
func (e *HookError) Unwrap() error { return e.Err }
