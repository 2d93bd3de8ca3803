package check

import (
	"github.com/vadiminshakov/interleave/cell"
	"github.com/vadiminshakov/interleave/engine"
)

// CellEquals holds when cell id has value want.
func CellEquals(id cell.ID, want uint64) Predicate {
	return func(s *engine.State) (bool, error) {
		v, err := s.Value(id)
		if err != nil {
			return false, err
		}
		return v == want, nil
	}
}

// CellIn holds when cell id has one of the given values.
func CellIn(id cell.ID, values ...uint64) Predicate {
	return func(s *engine.State) (bool, error) {
		v, err := s.Value(id)
		if err != nil {
			return false, err
		}
		for _, w := range values {
			if v == w {
				return true, nil
			}
		}
		return false, nil
	}
}

// BindingEquals holds when the named value of thread equals want.
func BindingEquals(thread int, name string, want uint64) Predicate {
	return func(s *engine.State) (bool, error) {
		v, err := s.Named(thread, name)
		if err != nil {
			return false, err
		}
		return v == want, nil
	}
}

// DistinctBindings holds when every thread bound a different value to name,
// e.g. each fetch-add observed its own ticket.
func DistinctBindings(name string) Predicate {
	return func(s *engine.State) (bool, error) {
		seen := map[uint64]bool{}
		for t := 0; t < s.Threads(); t++ {
			v, err := s.Named(t, name)
			if err != nil {
				return false, err
			}
			if seen[v] {
				return false, nil
			}
			seen[v] = true
		}
		return true, nil
	}
}

// All holds when every predicate holds. It stops at the first false one.
func All(ps ...Predicate) Predicate {
	return func(s *engine.State) (bool, error) {
		for _, p := range ps {
			ok, err := p(s)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

func Not(p Predicate) Predicate {
	return func(s *engine.State) (bool, error) {
		ok, err := p(s)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}
