// Package pause holds the system-wide pause flag. The registry's emergency
// path is the only writer; every component that moves funds reads it, which
// keeps the "what pausing disables" contract in one place instead of
// scattered ad hoc checks.
package pause

import (
	"sync/atomic"

	dErrors "custodia/pkg/domain-errors"
)

// State is the shared pause flag. A zero State is running.
type State struct {
	paused atomic.Bool
}

func NewState() *State { return &State{} }

// Paused reports whether the emergency pause is active.
func (s *State) Paused() bool { return s.paused.Load() }

// Engage activates the system-wide pause. Registry only.
func (s *State) Engage() { s.paused.Store(true) }

// Lift clears the pause. Registry only.
func (s *State) Lift() { s.paused.Store(false) }

// Guard returns a coded error when the system is paused. Fund-moving entry
// points call it before touching any state.
func (s *State) Guard() error {
	if s.Paused() {
		return dErrors.New(dErrors.CodeUnavailable, "system is paused")
	}
	return nil
}
