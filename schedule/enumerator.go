package schedule

// Independence reports whether two operations from different threads
// commute: running them in either order yields the same state and the
// same returned values.
type Independence func(a, b Step) bool

type Option func(e *Enumerator)

// WithIndependence enables adjacent-independence pruning. An interleaving is
// skipped when it schedules an operation of thread i immediately before an
// independent operation of thread j < i; swapping that pair gives an
// equivalent interleaving that is still produced. Every equivalence class
// keeps its lexicographically least member, so no final state is lost.
// Intermediate states are not preserved.
func WithIndependence(indep Independence) Option {
	return func(e *Enumerator) {
		e.indep = indep
	}
}

// Enumerator lazily produces every interleaving of a fixed set of threads
// exactly once. Threads are tried in ascending order at every depth, so the
// sequence is deterministic and its first element runs the threads one after
// another.
type Enumerator struct {
	lengths []int
	total   int
	indep   Independence

	// depth-first search stack: path is the current prefix, pcs[t] the
	// next unscheduled operation of thread t
	path    []Step
	pcs     []int
	started bool
	done    bool
	emitted uint64
}

func NewEnumerator(lengths []int, opts ...Option) *Enumerator {
	e := &Enumerator{
		lengths: append([]int{}, lengths...),
		pcs:     make([]int, len(lengths)),
	}
	for _, n := range lengths {
		if n > 0 {
			e.total += n
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	e.path = make([]Step, 0, e.total)
	return e
}

// Pruning reports whether independence pruning is enabled.
func (e *Enumerator) Pruning() bool {
	return e.indep != nil
}

// Emitted returns how many interleavings Next has produced since the last Reset.
func (e *Enumerator) Emitted() uint64 {
	return e.emitted
}

// Reset restarts the enumeration from the first interleaving.
func (e *Enumerator) Reset() {
	e.path = e.path[:0]
	for i := range e.pcs {
		e.pcs[i] = 0
	}
	e.started = false
	e.done = false
	e.emitted = 0
}

// Next returns the next interleaving. The returned slice is owned by the
// caller. ok is false once every interleaving has been produced.
func (e *Enumerator) Next() (il Interleaving, ok bool) {
	if e.done {
		return nil, false
	}
	from := 0
	if e.started {
		// the previous call stopped at a leaf; move past it
		if len(e.path) == 0 {
			e.done = true
			return nil, false
		}
		from = e.pop() + 1
	}
	e.started = true

	for {
		if len(e.path) == e.total {
			e.emitted++
			return append(Interleaving{}, e.path...), true
		}
		if t, found := e.pick(from); found {
			e.push(t)
			from = 0
			continue
		}
		if len(e.path) == 0 {
			e.done = true
			return nil, false
		}
		from = e.pop() + 1
	}
}

// pick returns the lowest thread >= from that may run next.
func (e *Enumerator) pick(from int) (int, bool) {
	for t := from; t < len(e.lengths); t++ {
		if e.pcs[t] >= e.lengths[t] {
			continue
		}
		if e.pruned(t) {
			continue
		}
		return t, true
	}
	return 0, false
}

func (e *Enumerator) pruned(t int) bool {
	if e.indep == nil || len(e.path) == 0 {
		return false
	}
	prev := e.path[len(e.path)-1]
	if prev.Thread <= t {
		return false
	}
	return e.indep(prev, Step{Thread: t, Index: e.pcs[t]})
}

func (e *Enumerator) push(t int) {
	e.path = append(e.path, Step{Thread: t, Index: e.pcs[t]})
	e.pcs[t]++
}

func (e *Enumerator) pop() int {
	last := e.path[len(e.path)-1]
	e.path = e.path[:len(e.path)-1]
	e.pcs[last.Thread]--
	return last.Thread
}
