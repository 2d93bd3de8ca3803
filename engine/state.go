package engine

import (
	"fmt"
	"strings"

	"github.com/vadiminshakov/interleave/cell"
	"github.com/vadiminshakov/interleave/program"
	"github.com/vadiminshakov/interleave/schedule"
)

// Binding is the value an operation returned to its thread.
type Binding struct {
	Value   uint64
	Swapped bool
	bound   bool
}

// Event records one executed step.
type Event struct {
	Step   schedule.Step
	Op     program.Operation
	Result cell.Result
}

func (e Event) String() string {
	switch e.Op.Kind() {
	case cell.Write:
		return fmt.Sprintf("%s %s -> %d", e.Step, e.Op, e.Result.New)
	case cell.CompareAndSwap:
		return fmt.Sprintf("%s %s = %d (swapped=%t) -> %d", e.Step, e.Op, e.Result.Returned, e.Result.Swapped, e.Result.New)
	default:
		return fmt.Sprintf("%s %s = %d -> %d", e.Step, e.Op, e.Result.Returned, e.Result.New)
	}
}

// State is the shared memory plus thread-local bindings of one replay.
// It belongs to a single replay and is never shared between interleavings.
type State struct {
	threads  []*program.Thread
	cells    []uint64
	bindings [][]Binding
	trace    []Event
}

func newState(threads []*program.Thread, cells []uint64) *State {
	bindings := make([][]Binding, len(threads))
	for i, t := range threads {
		bindings[i] = make([]Binding, t.Len())
	}
	return &State{threads: threads, cells: cells, bindings: bindings, trace: []Event{}}
}

func (s *State) record(ev Event) {
	s.cells[ev.Op.Cell] = ev.Result.New
	if ev.Op.Binds() {
		s.bindings[ev.Step.Thread][ev.Step.Index] = Binding{
			Value:   ev.Result.Returned,
			Swapped: ev.Result.Swapped,
			bound:   true,
		}
	}
	s.trace = append(s.trace, ev)
}

// Value returns the current value of a cell.
func (s *State) Value(id cell.ID) (uint64, error) {
	if id < 0 || int(id) >= len(s.cells) {
		return 0, &cell.UnknownCellError{ID: id}
	}
	return s.cells[id], nil
}

// Values returns a copy of all cell values indexed by cell id.
func (s *State) Values() []uint64 {
	return append([]uint64{}, s.cells...)
}

func (s *State) binding(thread, index int) (Binding, error) {
	if thread < 0 || thread >= len(s.bindings) || index < 0 || index >= len(s.bindings[thread]) {
		return Binding{}, &UnboundBindingError{Thread: thread, Index: index}
	}
	b := s.bindings[thread][index]
	if !b.bound {
		return Binding{}, &UnboundBindingError{Thread: thread, Index: index}
	}
	return b, nil
}

// Binding returns the value operation index of thread returned.
func (s *State) Binding(thread, index int) (uint64, error) {
	b, err := s.binding(thread, index)
	return b.Value, err
}

// Swapped reports whether a compare-and-swap succeeded.
func (s *State) Swapped(thread, index int) (bool, error) {
	b, err := s.binding(thread, index)
	return b.Swapped, err
}

// Named looks a binding up by the name given with Operation.As. When a thread
// reuses a name, the most recently executed operation carrying it wins.
func (s *State) Named(thread int, name string) (uint64, error) {
	if thread < 0 || thread >= len(s.threads) {
		return 0, &UnboundBindingError{Thread: thread, Name: name}
	}
	t := s.threads[thread]
	for end := t.Len(); ; {
		index, ok := t.LookupBefore(name, end)
		if !ok {
			return 0, &UnboundBindingError{Thread: thread, Name: name}
		}
		if b := s.bindings[thread][index]; b.bound {
			return b.Value, nil
		}
		end = index
	}
}

// namedBefore resolves an operand of operation index of thread: the value
// bound by the nearest earlier operation called name.
func (s *State) namedBefore(thread int, name string, index int) (uint64, error) {
	k, ok := s.threads[thread].LookupBefore(name, index)
	if !ok {
		return 0, &UnboundBindingError{Thread: thread, Index: index, Name: name}
	}
	b, err := s.binding(thread, k)
	if err != nil {
		return 0, &UnboundBindingError{Thread: thread, Index: k, Name: name}
	}
	return b.Value, nil
}

// Threads returns the number of threads the state tracks.
func (s *State) Threads() int {
	return len(s.threads)
}

// Steps returns how many operations have been executed.
func (s *State) Steps() int {
	return len(s.trace)
}

// Trace returns the executed steps in order.
func (s *State) Trace() []Event {
	return append([]Event{}, s.trace...)
}

// Clone returns a deep copy that stays valid after the replay moves on.
func (s *State) Clone() *State {
	bindings := make([][]Binding, len(s.bindings))
	for i, bs := range s.bindings {
		bindings[i] = append([]Binding{}, bs...)
	}
	return &State{
		threads:  s.threads,
		cells:    append([]uint64{}, s.cells...),
		bindings: bindings,
		trace:    append([]Event{}, s.trace...),
	}
}

func (s *State) String() string {
	ss := []string{}
	for i, v := range s.cells {
		ss = append(ss, fmt.Sprintf("c%d |-> %d", i, v))
	}
	res := fmt.Sprintf("[%s]", strings.Join(ss, ", "))
	for t, bs := range s.bindings {
		vs := []string{}
		for i, b := range bs {
			if b.bound {
				vs = append(vs, fmt.Sprintf("%d:%d", i, b.Value))
			}
		}
		res += fmt.Sprintf(" %s{%s}", s.threads[t].Name, strings.Join(vs, " "))
	}
	return res
}
