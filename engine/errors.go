package engine

import (
	"fmt"

	"github.com/vadiminshakov/interleave/schedule"
)

// MalformedInterleavingError means the engine was handed a schedule that is
// not a complete, program-ordered shuffle of its threads. The enumerator
// never produces one; seeing this error is a bug in whatever built the schedule.
type MalformedInterleavingError struct {
	Interleaving schedule.Interleaving
	Reason       string
}

func (e *MalformedInterleavingError) Error() string {
	return fmt.Sprintf("malformed interleaving %s: %s", e.Interleaving, e.Reason)
}

// UnboundBindingError is returned when a value is looked up that no
// operation has produced (yet), or that the operation never returns.
type UnboundBindingError struct {
	Thread int
	Index  int
	Name   string
}

func (e *UnboundBindingError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("thread %d: binding %q is not bound", e.Thread, e.Name)
	}
	return fmt.Sprintf("thread %d: result of operation %d is not bound", e.Thread, e.Index)
}
