// Package guard provides the per-instance in-progress guard used by every
// fund-moving entry point. While one operation runs on an instance, a second
// call into the same instance is rejected rather than interleaved. That
// covers re-entrant calls arriving via an external asset callback, which
// call-stack depth alone would not catch.
package guard

import (
	"sync/atomic"

	dErrors "custodia/pkg/domain-errors"
)

// Guard is a non-blocking mutual-exclusion flag. The zero value is ready.
type Guard struct {
	busy atomic.Bool
}

// Acquire claims the guard. It returns a Conflict error if an operation is
// already in progress on this instance.
func (g *Guard) Acquire() error {
	if !g.busy.CompareAndSwap(false, true) {
		return dErrors.New(dErrors.CodeConflict, "operation already in progress")
	}
	return nil
}

// Release frees the guard. Call via defer immediately after Acquire.
func (g *Guard) Release() {
	g.busy.Store(false)
}
