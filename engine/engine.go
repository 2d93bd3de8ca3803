package engine

import (
	"github.com/pkg/errors"

	"github.com/vadiminshakov/interleave/cell"
	"github.com/vadiminshakov/interleave/program"
	"github.com/vadiminshakov/interleave/schedule"
)

// StepFunc observes the state after every executed step. A non-nil error
// stops the replay.
type StepFunc func(ev Event, s *State) error

// Engine replays interleavings of a fixed set of thread programs against
// fresh copies of a cell store.
type Engine struct {
	cells   *cell.Store
	threads []*program.Thread
	lengths []int
}

// New checks that every thread sits at the position matching its ID, that
// every operation names a cell of cells and that thread-local operands refer
// to values bound earlier in the same thread. A reused name refers to the
// nearest earlier operation carrying it. The threads are copied, so later
// changes by the caller do not affect the engine.
func New(cells *cell.Store, threads []*program.Thread) (*Engine, error) {
	if cells == nil {
		return nil, errors.New("cell store is not set")
	}
	lengths := make([]int, len(threads))
	copies := make([]*program.Thread, len(threads))
	for i, orig := range threads {
		if orig == nil {
			return nil, errors.Errorf("thread %d is nil", i)
		}
		t := program.NewThread(orig.ID, orig.Name, orig.Ops...)
		copies[i] = t
		if t.ID != i {
			return nil, errors.Errorf("thread %q has id %d at position %d", t.Name, t.ID, i)
		}
		for j, op := range t.Ops {
			if !cells.Has(op.Cell) {
				return nil, errors.Wrapf(&cell.UnknownCellError{ID: op.Cell},
					"thread %s operation %d (%s)", t.Name, j, op)
			}
			for _, ref := range op.Refs() {
				k, ok := t.LookupBefore(ref, j)
				if !ok || !t.Ops[k].Binds() {
					return nil, errors.Wrapf(&UnboundBindingError{Thread: i, Index: j, Name: ref},
						"thread %s operation %d (%s)", t.Name, j, op)
				}
			}
		}
		lengths[i] = t.Len()
	}
	return &Engine{cells: cells.Fresh(), threads: copies, lengths: lengths}, nil
}

// Threads returns the thread programs in id order.
func (e *Engine) Threads() []*program.Thread {
	return append([]*program.Thread{}, e.threads...)
}

// Lengths returns the operation count of every thread.
func (e *Engine) Lengths() []int {
	return append([]int{}, e.lengths...)
}

// Operations returns the total number of operations across all threads.
func (e *Engine) Operations() int {
	n := 0
	for _, l := range e.lengths {
		n += l
	}
	return n
}

// Operation returns the operation a step schedules.
func (e *Engine) Operation(s schedule.Step) program.Operation {
	return e.threads[s.Thread].Ops[s.Index]
}

// Independent reports whether the operations scheduled by a and b commute.
// Operations on different cells always commute; on the same cell only two
// reads do.
func (e *Engine) Independent(a, b schedule.Step) bool {
	if a.Thread == b.Thread {
		return false
	}
	x, y := e.Operation(a), e.Operation(b)
	if x.Cell != y.Cell {
		return true
	}
	return x.Kind() == cell.Read && y.Kind() == cell.Read
}

// Initial returns the state before any operation runs.
func (e *Engine) Initial() *State {
	return newState(e.threads, e.cells.Fresh().Values())
}

// Replay executes il against a fresh store. If observe returns an error the
// replay stops and the state reached so far is returned with that error.
func (e *Engine) Replay(il schedule.Interleaving, observe StepFunc) (*State, error) {
	if err := il.Validate(e.lengths); err != nil {
		return nil, &MalformedInterleavingError{Interleaving: il, Reason: err.Error()}
	}
	store := e.cells.Fresh()
	state := newState(e.threads, store.Values())
	for i, step := range il {
		op := e.Operation(step)
		access, err := op.Resolve(func(name string) (uint64, error) {
			return state.namedBefore(step.Thread, name, step.Index)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "step %d (%s)", i, step)
		}
		res, err := store.Apply(op.Cell, access)
		if err != nil {
			return nil, errors.Wrapf(err, "step %d (%s)", i, step)
		}
		ev := Event{Step: step, Op: op, Result: res}
		state.record(ev)
		if observe != nil {
			if err := observe(ev, state); err != nil {
				return state, err
			}
		}
	}
	return state, nil
}
