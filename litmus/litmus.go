// Package litmus holds small concurrent programs with a known verdict. They
// are used by the harness binary and as fixtures in tests.
package litmus

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/interleave/cell"
	"github.com/vadiminshakov/interleave/check"
	"github.com/vadiminshakov/interleave/engine"
	"github.com/vadiminshakov/interleave/program"
)

// Scenario is a set of thread programs, the cells they share and the
// assertion expected of them.
type Scenario struct {
	Name       string
	Cells      *cell.Store
	Threads    []*program.Thread
	Assertion  check.Assertion
	Invariants []check.Assertion
	// Holds is the verdict a correct verifier reaches.
	Holds bool
}

// Engine builds the execution engine for the scenario.
func (s *Scenario) Engine() (*engine.Engine, error) {
	return engine.New(s.Cells, s.Threads)
}

var builders = map[string]func(n int) *Scenario{
	"fetch-add":       func(n int) *Scenario { return FetchAddSum(n, cell.Width16) },
	"racy-increment":  RacyIncrement,
	"cas-increment":   CASIncrement,
	"tickets":         Tickets,
	"arc-clone":       func(int) *Scenario { return ArcClone() },
	"message-passing": func(int) *Scenario { return MessagePassing() },
	"wraparound":      func(n int) *Scenario { return Wraparound(n, cell.Width8) },
}

// Names lists the registered scenarios.
func Names() []string {
	names := []string{}
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup builds the named scenario with n threads. Scenarios with a fixed
// shape ignore n.
func Lookup(name string, n int) (*Scenario, error) {
	build, ok := builders[name]
	if !ok {
		return nil, errors.Errorf("unknown scenario %q", name)
	}
	if n < 1 {
		return nil, errors.Errorf("scenario %q needs at least one thread, got %d", name, n)
	}
	return build(n), nil
}

// FetchAddSum has thread x add x to a shared zero counter. Addition
// commutes, so the counter ends at n*(n-1)/2 (modulo the width) in every
// interleaving.
func FetchAddSum(n int, width cell.Width) *Scenario {
	cells := cell.NewStore()
	c := cells.Create(0, width)
	threads := []*program.Thread{}
	for x := 0; x < n; x++ {
		threads = append(threads, program.NewThread(x, "", program.FetchAdd(c, uint64(x)).As("prev")))
	}
	want := uint64(n*(n-1)/2) & width.Mask()
	return &Scenario{
		Name:      "fetch-add",
		Cells:     cells,
		Threads:   threads,
		Assertion: check.New("counter == n*(n-1)/2", check.CellEquals(c, want)),
		Holds:     true,
	}
}

// RacyIncrement composes an increment from a separate load and store. Two
// threads can load the same value and one update is lost.
func RacyIncrement(n int) *Scenario {
	cells := cell.NewStore()
	c := cells.Create(0, cell.Width64)
	threads := []*program.Thread{}
	for x := 0; x < n; x++ {
		threads = append(threads, program.NewThread(x, "",
			program.Read(c).As("r"),
			program.WriteFrom(c, "r", 1),
		))
	}
	return &Scenario{
		Name:      "racy-increment",
		Cells:     cells,
		Threads:   threads,
		Assertion: check.New("counter == n", check.CellEquals(c, uint64(n))),
		Holds:     n < 2,
	}
}

// CASIncrement makes a single compare-and-swap attempt per thread after
// loading the counter. Attempts may fail but none is lost: the counter
// equals the number of successful swaps, and never exceeds n.
func CASIncrement(n int) *Scenario {
	cells := cell.NewStore()
	c := cells.Create(0, cell.Width64)
	threads := []*program.Thread{}
	for x := 0; x < n; x++ {
		threads = append(threads, program.NewThread(x, "",
			program.Read(c).As("r"),
			program.CompareAndSwapFrom(c, "r", 1),
		))
	}
	counted := func(s *engine.State) (bool, error) {
		v, err := s.Value(c)
		if err != nil {
			return false, err
		}
		wins := uint64(0)
		for t := 0; t < s.Threads(); t++ {
			ok, err := s.Swapped(t, 1)
			if err != nil {
				return false, err
			}
			if ok {
				wins++
			}
		}
		return v == wins && wins >= 1, nil
	}
	bounded := func(s *engine.State) (bool, error) {
		v, err := s.Value(c)
		if err != nil {
			return false, err
		}
		return v <= uint64(n), nil
	}
	return &Scenario{
		Name:       "cas-increment",
		Cells:      cells,
		Threads:    threads,
		Assertion:  check.New("counter == successful swaps", counted),
		Invariants: []check.Assertion{check.New("counter <= n", bounded)},
		Holds:      true,
	}
}

// Tickets hands out tickets with fetch-add; no two threads get the same one.
func Tickets(n int) *Scenario {
	cells := cell.NewStore()
	c := cells.Create(0, cell.Width32)
	threads := []*program.Thread{}
	for x := 0; x < n; x++ {
		threads = append(threads, program.NewThread(x, "", program.FetchAdd(c, 1).As("ticket")))
	}
	return &Scenario{
		Name:    "tickets",
		Cells:   cells,
		Threads: threads,
		Assertion: check.New("tickets are distinct and all issued", check.All(
			check.DistinctBindings("ticket"),
			check.CellEquals(c, uint64(n)),
		)),
		Holds: true,
	}
}

// ArcClone models two holders of a reference-counted immutable value: both
// only read it, so the sum of their reads is twice the value.
func ArcClone() *Scenario {
	cells := cell.NewStore()
	shared := cells.Create(1, cell.Width64)
	threads := []*program.Thread{
		program.NewThread(0, "a", program.Read(shared).As("v")),
		program.NewThread(1, "b", program.Read(shared).As("v")),
	}
	sum := func(s *engine.State) (bool, error) {
		a, err := s.Named(0, "v")
		if err != nil {
			return false, err
		}
		b, err := s.Named(1, "v")
		if err != nil {
			return false, err
		}
		return a+b == 2, nil
	}
	return &Scenario{
		Name:      "arc-clone",
		Cells:     cells,
		Threads:   threads,
		Assertion: check.New("*a + *b == 2", sum),
		Holds:     true,
	}
}

// MessagePassing publishes data behind a flag. With sequentially consistent
// atomics a reader that sees the flag also sees the data.
func MessagePassing() *Scenario {
	cells := cell.NewStore()
	data := cells.Create(0, cell.Width64)
	flag := cells.Create(0, cell.Width64)
	threads := []*program.Thread{
		program.NewThread(0, "writer", program.Write(data, 42), program.Write(flag, 1)),
		program.NewThread(1, "reader", program.Read(flag).As("f"), program.Read(data).As("d")),
	}
	published := func(s *engine.State) (bool, error) {
		f, err := s.Named(1, "f")
		if err != nil {
			return false, err
		}
		d, err := s.Named(1, "d")
		if err != nil {
			return false, err
		}
		return f == 0 || d == 42, nil
	}
	return &Scenario{
		Name:      "message-passing",
		Cells:     cells,
		Threads:   threads,
		Assertion: check.New("flag implies data", published),
		Holds:     true,
	}
}

// Wraparound has n threads each add 200 to a narrow counter, which wraps.
func Wraparound(n int, width cell.Width) *Scenario {
	cells := cell.NewStore()
	c := cells.Create(0, width)
	threads := []*program.Thread{}
	for x := 0; x < n; x++ {
		threads = append(threads, program.NewThread(x, "", program.FetchAdd(c, 200)))
	}
	want := uint64(200*n) & width.Mask()
	return &Scenario{
		Name:      "wraparound",
		Cells:     cells,
		Threads:   threads,
		Assertion: check.New("counter == 200*n mod 2^width", check.CellEquals(c, want)),
		Holds:     true,
	}
}
